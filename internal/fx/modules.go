package fx

import (
	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"slippi-tracker/internal/api"
	"slippi-tracker/internal/config"
	"slippi-tracker/internal/domain"
	"slippi-tracker/internal/events"
	"slippi-tracker/internal/logger"
	"slippi-tracker/internal/replay"
	"slippi-tracker/internal/repository"
	"slippi-tracker/internal/server"
	"slippi-tracker/internal/service"
	"slippi-tracker/internal/tracker"
)

func ProvideParser(cfg *config.Config, logger zerolog.Logger) replay.Parser {
	return replay.NewExecParser(cfg.ReplayDecoder, logger)
}

var Module = fx.Options(
	logger.Module,
	config.Module,
	// storage
	fx.Provide(repository.NewHandle),
	fx.Provide(repository.NewResultRepository),
	fx.Provide(repository.NewRankRepository),
	fx.Provide(repository.NewNoteRepository),
	fx.Provide(repository.NewChatRepository),
	fx.Provide(repository.NewIngestRunRepository),
	// events
	fx.Provide(
		events.NewBus,
		func(b *events.Bus) domain.Emitter { return b },
	),
	// api client
	fx.Provide(fx.Annotate(api.NewSlippiClient, fx.As(new(service.RankFetcher)))),
	fx.Provide(ProvideParser),
	// svc
	fx.Provide(service.NewMetaService),
	fx.Provide(service.NewStatsService),
	fx.Provide(service.NewResultService),
	fx.Provide(service.NewRankService),
	fx.Provide(service.NewNoteService),
	fx.Provide(service.NewChatService),
	fx.Provide(service.NewImportService),
	// tracker + server
	fx.Provide(tracker.New),
	fx.Provide(server.New),
)
