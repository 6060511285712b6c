package engine

import (
	"trading-agent/internal/interfaces"
	"trading-agent/internal/store"
)

func New(cfg *store.Config, deps Deps) (interfaces.Engine, error) {
	return newEngine(cfg, deps)
}
