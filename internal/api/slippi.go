package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"slippi-tracker/internal/config"
	"slippi-tracker/internal/constants"
	"slippi-tracker/internal/domain"
)

// SlippiClient looks up netplay profiles on the public rank service.
type SlippiClient struct {
	url    string
	client *fasthttp.Client
	logger zerolog.Logger
}

func NewSlippiClient(cfg *config.Config, logger zerolog.Logger) *SlippiClient {
	return &SlippiClient{
		url: cfg.RankAPIURL,
		client: &fasthttp.Client{
			MaxConnsPerHost:     16,
			ReadTimeout:         10 * time.Second,
			WriteTimeout:        10 * time.Second,
			MaxIdleConnDuration: 1 * time.Minute,
		},
		logger: logger,
	}
}

// WithDial routes requests through dial; used with in-memory listeners.
func (c *SlippiClient) WithDial(dial func(addr string) (net.Conn, error)) *SlippiClient {
	c.client.Dial = dial
	return c
}

// FetchPlayerRanks returns every season profile for a connect code or user
// id. Failures are logged and produce an empty list.
func (c *SlippiClient) FetchPlayerRanks(ctx context.Context, codeOrID string) []domain.PlayerRank {
	ranks := []domain.PlayerRank{}
	if codeOrID == "" {
		return ranks
	}

	ctx, cancel := context.WithTimeout(ctx, constants.ExternalAPITimeout)
	defer cancel()

	body := graphQLRequest{
		OperationName: "AccountManagementPageQuery",
		Variables:     map[string]string{"cc": codeOrID, "uid": codeOrID},
		Query:         profileQuery,
	}
	resp, err := doRequest[profileResponse](ctx, c, body)
	if err != nil {
		c.logger.Error().Err(err).Str("code", codeOrID).Msg("failed to fetch player profile")
		return ranks
	}

	user := resp.Data.GetUser
	if resp.Data.GetConnectCode != nil && resp.Data.GetConnectCode.User != nil {
		user = resp.Data.GetConnectCode.User
	}
	if user == nil {
		c.logger.Debug().Str("code", codeOrID).Msg("no profile found")
		return ranks
	}

	for _, p := range user.NetplayProfiles {
		if p == nil {
			continue
		}
		rank := domain.PlayerRank{
			UserID:            user.FbUID,
			Elo:               p.RatingOrdinal,
			Wins:              p.Wins,
			Losses:            p.Losses,
			GlobalPlacement:   p.DailyGlobalPlacement,
			RegionalPlacement: p.DailyRegionalPlacement,
			Continent:         p.Continent,
		}
		if p.Season != nil {
			rank.SeasonID = p.Season.ID
			rank.SeasonName = p.Season.Name
			rank.SeasonDateStart = p.Season.StartedAt
			rank.SeasonDateEnd = p.Season.EndedAt
			rank.WasActiveSeason = p.Season.Status == "ACTIVE"
		}
		for _, ch := range p.Characters {
			rank.Characters = append(rank.Characters, domain.RankCharacter{Name: ch.Character, GameCount: ch.GameCount})
		}
		ranks = append(ranks, rank)
	}
	return ranks
}

func doRequest[T any](ctx context.Context, client *SlippiClient, body any) (*T, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(client.url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Apollographql-Client-Name", "slippi-web")
	req.Header.Set("Cache-Control", "no-cache")
	req.SetBody(payload)

	deadline, ok := ctx.Deadline()
	if ok {
		if err := client.client.DoDeadline(req, resp, deadline); err != nil {
			return nil, err
		}
	} else {
		if err := client.client.Do(req, resp); err != nil {
			return nil, err
		}
	}

	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, fmt.Errorf("API error: %d", resp.StatusCode())
	}

	var result T
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

type graphQLRequest struct {
	OperationName string            `json:"operationName"`
	Variables     map[string]string `json:"variables"`
	Query         string            `json:"query"`
}

type profileResponse struct {
	Data struct {
		GetUser        *userProfile `json:"getUser"`
		GetConnectCode *struct {
			User *userProfile `json:"user"`
		} `json:"getConnectCode"`
	} `json:"data"`
}

type userProfile struct {
	FbUID       string `json:"fbUid"`
	DisplayName string `json:"displayName"`
	ConnectCode *struct {
		Code string `json:"code"`
	} `json:"connectCode"`
	NetplayProfiles []*netplayProfile `json:"netplayProfiles"`
}

type netplayProfile struct {
	ID                     string  `json:"id"`
	RatingOrdinal          float64 `json:"ratingOrdinal"`
	Wins                   *int    `json:"wins"`
	Losses                 *int    `json:"losses"`
	DailyGlobalPlacement   *int    `json:"dailyGlobalPlacement"`
	DailyRegionalPlacement *int    `json:"dailyRegionalPlacement"`
	Continent              string  `json:"continent"`
	Characters             []struct {
		Character string `json:"character"`
		GameCount int    `json:"gameCount"`
	} `json:"characters"`
	Season *struct {
		ID        string `json:"id"`
		StartedAt string `json:"startedAt"`
		EndedAt   string `json:"endedAt"`
		Name      string `json:"name"`
		Status    string `json:"status"`
	} `json:"season"`
}

const profileQuery = `
fragment profileFields on NetplayProfile {
  id
  ratingOrdinal
  ratingUpdateCount
  wins
  losses
  dailyGlobalPlacement
  dailyRegionalPlacement
  continent
  characters {
    id
    character
    gameCount
  }
}

fragment userProfilePage on User {
  fbUid
  displayName
  connectCode {
    code
  }
  status
  netplayProfiles {
    ...profileFields
    season {
      id
      startedAt
      endedAt
      name
      status
    }
  }
}

query AccountManagementPageQuery($cc: String!, $uid: String!) {
  getUser(fbUid: $uid) {
    ...userProfilePage
  }
  getConnectCode(code: $cc) {
    user {
      ...userProfilePage
    }
  }
}
`
