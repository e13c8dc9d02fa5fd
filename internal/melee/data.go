package melee

type Character struct {
	ID        int
	Name      string
	ShortName string
	Colors    []string
}

var characters = []Character{
	{0, "Captain Falcon", "Falcon", []string{"Black", "Red", "White", "Green", "Blue"}},
	{1, "Donkey Kong", "DK", []string{"Black", "Red", "Blue", "Green"}},
	{2, "Fox", "", []string{"Red", "Blue", "Green"}},
	{3, "Mr. Game & Watch", "G&W", []string{"Red", "Blue", "Green"}},
	{4, "Kirby", "", []string{"Yellow", "Blue", "Red", "Green", "White"}},
	{5, "Bowser", "", []string{"Red", "Blue", "Black"}},
	{6, "Link", "", []string{"Red", "Blue", "Black", "White"}},
	{7, "Luigi", "", []string{"White", "Blue", "Red"}},
	{8, "Mario", "", []string{"Yellow", "Black", "Blue", "Green"}},
	{9, "Marth", "", []string{"Red", "Green", "Black", "White"}},
	{10, "Mewtwo", "", []string{"Red", "Blue", "Green"}},
	{11, "Ness", "", []string{"Yellow", "Blue", "Green"}},
	{12, "Peach", "", []string{"Daisy", "White", "Blue", "Green"}},
	{13, "Pikachu", "", []string{"Red", "Party Hat", "Cowboy Hat"}},
	{14, "Ice Climbers", "ICs", []string{"Green", "Orange", "Red"}},
	{15, "Jigglypuff", "Puff", []string{"Red", "Blue", "Headband", "Crown"}},
	{16, "Samus", "", []string{"Pink", "Black", "Green", "Purple"}},
	{17, "Yoshi", "", []string{"Red", "Blue", "Yellow", "Pink", "Cyan"}},
	{18, "Zelda", "", []string{"Red", "Blue", "Green", "White"}},
	{19, "Sheik", "", []string{"Red", "Blue", "Green", "White"}},
	{20, "Falco", "", []string{"Red", "Blue", "Green"}},
	{21, "Young Link", "YLink", []string{"Red", "Blue", "White", "Black"}},
	{22, "Dr. Mario", "Doc", []string{"Red", "Blue", "Green", "Black"}},
	{23, "Roy", "", []string{"Red", "Blue", "Green", "Yellow"}},
	{24, "Pichu", "", []string{"Red", "Blue", "Green"}},
	{25, "Ganondorf", "Ganon", []string{"Red", "Blue", "Green", "Purple"}},
}

var stageNames = map[int]string{
	2:  "Fountain of Dreams",
	3:  "Pokémon Stadium",
	4:  "Princess Peach's Castle",
	5:  "Kongo Jungle",
	6:  "Brinstar",
	7:  "Corneria",
	8:  "Yoshi's Story",
	9:  "Onett",
	10: "Mute City",
	11: "Rainbow Cruise",
	12: "Jungle Japes",
	13: "Great Bay",
	14: "Hyrule Temple",
	15: "Brinstar Depths",
	16: "Yoshi's Island",
	17: "Green Greens",
	18: "Fourside",
	19: "Mushroom Kingdom I",
	20: "Mushroom Kingdom II",
	22: "Venom",
	23: "Poké Floats",
	24: "Big Blue",
	25: "Icicle Mountain",
	26: "Icetop",
	27: "Flat Zone",
	28: "Dream Land N64",
	29: "Yoshi's Island N64",
	30: "Kongo Jungle N64",
	31: "Battlefield",
	32: "Final Destination",
}

// LegalStageIDs are the stages of the competitive ruleset.
var LegalStageIDs = []int{2, 3, 8, 28, 31, 32}

// CharacterByID returns the character for a game id in 0..25.
func CharacterByID(id int) (Character, bool) {
	if id < 0 || id >= len(characters) {
		return Character{}, false
	}
	return characters[id], true
}

// Characters returns every character ordered by id.
func Characters() []Character {
	out := make([]Character, len(characters))
	copy(out, characters)
	return out
}

func CharacterName(id int) string {
	c, _ := CharacterByID(id)
	return c.Name
}

// ColorName returns "" when either id is out of range.
func ColorName(characterID, color int) string {
	c, ok := CharacterByID(characterID)
	if !ok || color < 0 || color >= len(c.Colors) {
		return ""
	}
	return c.Colors[color]
}

// PaletteSize is the number of named costumes of a character.
func PaletteSize(characterID int) int {
	c, _ := CharacterByID(characterID)
	return len(c.Colors)
}

func StageName(id int) string {
	return stageNames[id]
}
