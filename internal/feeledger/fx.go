package feeledger

import (
	"github.com/smallbiznis/feeledger/internal/feeledger/repository"
	"github.com/smallbiznis/feeledger/internal/feeledger/service"
	"go.uber.org/fx"
)

var Module = fx.Module("feeledger.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
