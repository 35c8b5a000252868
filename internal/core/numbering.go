package core

import (
	"context"
	"fmt"
)

// NextReportNumber returns the next report number for a user: the highest
// number they have ever been assigned plus one, or 1 if they have none.
// Numbers of reports removed with their datasets are not handed out again.
//
// q must be the transaction that will insert the report, after LockUser has
// been called on it, so that concurrent report creations for the same user
// cannot read the same maximum.
func NextReportNumber(ctx context.Context, q Queries, userID int64) (int, error) {
	last, err := q.MaxReportNumber(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("read max report number: %w", err)
	}
	return last + 1, nil
}

// ReportFilename returns the download name for a report number.
func ReportFilename(number int) string {
	return fmt.Sprintf("Report %d.pdf", number)
}
