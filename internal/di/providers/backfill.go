package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/armyletters/letters-server/internal/logger"
)

// BackfillLettersIfNeeded repairs letters written before the like set
// existed. It runs once at startup; failures are logged and not fatal.
func BackfillLettersIfNeeded(i do.Injector) {
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)

	result, err := storeHandle.Backfill(context.Background())
	if err != nil {
		log.Error("Failed to backfill letters", "error", err)
		return
	}
	if result.Repaired > 0 {
		log.Info("Letters backfilled", "scanned", result.Scanned, "repaired", result.Repaired)
	}
}
