package feecatalog

import (
	"github.com/smallbiznis/feeledger/internal/feecatalog/repository"
	"github.com/smallbiznis/feeledger/internal/feecatalog/service"
	"go.uber.org/fx"
)

var Module = fx.Module("feecatalog.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
