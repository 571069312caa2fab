package waiver

import (
	"github.com/smallbiznis/feeledger/internal/waiver/repository"
	"github.com/smallbiznis/feeledger/internal/waiver/service"
	"go.uber.org/fx"
)

var Module = fx.Module("waiver.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
