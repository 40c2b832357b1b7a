package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"
)

// Show prints recent archived snapshots for one pool.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	pool, _, err := a.poolRef(opts.Pool)
	if err != nil {
		return err
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show snapshots")
	}
	if closeStore != nil {
		defer closeStore()
	}

	records, err := store.ListRecentSnapshots(ctx, pool.Name, opts.Limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(os.Stdout, "no snapshots found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tBlock\tPhase\tPaused\tReserve USD\tPrice USD\tRatio\tCRR ppm")

	for _, rec := range records {
		fmt.Fprintf(
			writer,
			"%s\t%d\t%s\t%t\t%s\t%s\t%s\t%d\n",
			rec.Timestamp.UTC().Format(time.RFC3339),
			rec.BlockHeight,
			rec.Phase,
			rec.Paused,
			formatDecimal(rec.ReserveUSD, 2),
			formatDecimal(rec.PriceUSD, 6),
			formatDecimal(rec.ReserveRatio, 4),
			rec.CRRPPM,
		)
	}

	writer.Flush()
	return nil
}
