package di

import (
	"fmt"

	"github.com/aristath/tracker/internal/domain"
	"github.com/aristath/tracker/internal/modules/portfolio"
	"github.com/aristath/tracker/internal/modules/snapshots"
	"github.com/rs/zerolog"
)

// InitializeRepositories creates the position and snapshot stores
func InitializeRepositories(container *Container, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}
	if container.Clock == nil {
		container.Clock = domain.SystemClock{}
	}

	container.PositionRepo = portfolio.NewPositionRepository(container.PortfolioDB.Conn(), container.Clock, log)
	container.SnapshotRepo = snapshots.NewSnapshotRepository(container.HistoryDB.Conn(), log)

	return nil
}
