package core

import (
	"context"
	"sort"
	"time"
)

// EquipmentRow is one validated data row from an uploaded CSV.
type EquipmentRow struct {
	Name        string  `json:"equipment_name"`
	Type        string  `json:"type"`
	Flowrate    float64 `json:"flowrate"`
	Pressure    float64 `json:"pressure"`
	Temperature float64 `json:"temperature"`
}

// TypeAverages holds the mean metrics for a single equipment type.
type TypeAverages struct {
	AvgFlowrate    float64 `json:"avg_flowrate"`
	AvgPressure    float64 `json:"avg_pressure"`
	AvgTemperature float64 `json:"avg_temperature"`
}

// Summary holds aggregate statistics derived from a set of equipment rows.
//
// Every key in TypeDistribution has an entry in TypeAverages and vice versa,
// and the distribution counts sum to TotalEquipment.
type Summary struct {
	TotalEquipment     int                     `json:"total_equipment"`
	AverageFlowrate    float64                 `json:"average_flowrate"`
	AveragePressure    float64                 `json:"average_pressure"`
	AverageTemperature float64                 `json:"average_temperature"`
	MaxTemperature     *float64                `json:"max_temperature,omitempty"` // Only set for limited summaries
	TypeDistribution   map[string]int          `json:"equipment_type_distribution"`
	TypeAverages       map[string]TypeAverages `json:"avg_metrics_per_type"`
}

// Types returns the distinct equipment types in sorted order.
func (s Summary) Types() []string {
	types := make([]string, 0, len(s.TypeDistribution))
	for t := range s.TypeDistribution {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Dataset is one uploaded CSV's persisted identity and summary.
type Dataset struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"-"`
	FileName  string    `json:"file_name"`
	CreatedAt time.Time `json:"uploaded_at"`
	Summary   Summary   `json:"summary"`
	RawRef    string    `json:"-"` // Reference into the raw file store, empty if not stored
}

// NewDataset contains the values needed to insert a dataset.
type NewDataset struct {
	UserID    int64
	FileName  string
	CreatedAt time.Time
	Summary   Summary
	RawRef    string
}

// Report is the single persisted PDF artifact tied to a dataset.
type Report struct {
	ID        int64
	UserID    int64
	DatasetID int64
	Number    int
	CreatedAt time.Time
	UpdatedAt time.Time
	PDF       []byte
}

// NewReport contains the values needed to insert a report.
type NewReport struct {
	UserID    int64
	DatasetID int64
	Number    int
	CreatedAt time.Time
	PDF       []byte
}

// ReportFile is the result of a report request: the latest PDF render and
// the report it is stored under.
type ReportFile struct {
	Report   Report
	PDF      []byte
	Filename string
}

// DeletedDataset identifies a deleted dataset and its raw file, if any.
type DeletedDataset struct {
	ID     int64
	RawRef string
}

// PurgeResult reports the number of records removed by Store.PurgeAll.
type PurgeResult struct {
	Datasets int64
	Rows     int64
	Reports  int64
	RawRefs  []string
}

// Queries is the set of record operations the core needs. Implementations
// are provided by the postgres and sqlite stores, both for the connection
// pool and for a single transaction.
type Queries interface {
	// InsertDataset creates a dataset row and returns it with its ID set.
	InsertDataset(ctx context.Context, d NewDataset) (Dataset, error)
	// InsertRows bulk-inserts rows for a dataset, preserving slice order.
	InsertRows(ctx context.Context, datasetID int64, rows []EquipmentRow) (int64, error)
	// GetDataset returns the dataset only if it belongs to userID.
	// Returns ErrNotFound otherwise.
	GetDataset(ctx context.Context, userID, datasetID int64) (Dataset, error)
	// ListDatasets returns the user's datasets newest first (created_at desc,
	// id desc). limit <= 0 returns all.
	ListDatasets(ctx context.Context, userID int64, limit int) ([]Dataset, error)
	// ListDatasetIDs returns the user's dataset ids newest first.
	ListDatasetIDs(ctx context.Context, userID int64) ([]int64, error)
	// DeleteDatasets deletes the user's datasets with the given ids along with
	// their rows and reports.
	DeleteDatasets(ctx context.Context, userID int64, ids []int64) ([]DeletedDataset, error)
	// ListRows returns a dataset's rows in file order. limit <= 0 returns all.
	ListRows(ctx context.Context, datasetID int64, limit int) ([]EquipmentRow, error)
	// CountRows returns the number of rows stored for a dataset.
	CountRows(ctx context.Context, datasetID int64) (int, error)
	// UsersOverLimit returns users owning more than keep datasets.
	UsersOverLimit(ctx context.Context, keep int) ([]int64, error)

	// LockUser serializes report numbering for a user until the enclosing
	// transaction ends.
	LockUser(ctx context.Context, userID int64) error
	// MaxReportNumber returns the highest report number the user has ever
	// been assigned, or 0 if none. Deleting a report does not lower it.
	MaxReportNumber(ctx context.Context, userID int64) (int, error)
	// GetReportByDataset returns the report for a dataset or ErrNotFound.
	GetReportByDataset(ctx context.Context, datasetID int64) (Report, error)
	// InsertReport creates a report. Returns ErrConflict when the number is
	// taken for the user and ErrReportExists when the dataset already has one.
	InsertReport(ctx context.Context, r NewReport) (Report, error)
	// UpdateReportPDF replaces the stored PDF of a report in place.
	UpdateReportPDF(ctx context.Context, reportID int64, pdf []byte, updatedAt time.Time) (Report, error)
	// CountReports returns the number of reports stored for a dataset.
	CountReports(ctx context.Context, datasetID int64) (int, error)
}

// Store is a record store with transaction support.
type Store interface {
	Queries

	// InTx runs fn inside one transaction. The transaction commits if fn
	// returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(q Queries) error) error

	// PurgeAll deletes every dataset, row and report.
	PurgeAll(ctx context.Context) (PurgeResult, error)
}

// Renderer produces PDF report bytes from a summary. Implementations must be
// deterministic for identical inputs.
type Renderer interface {
	Render(ctx context.Context, datasetName string, generatedAt time.Time, summary Summary) ([]byte, error)
}

// RawStore persists the raw uploaded CSV bytes. Failures are never fatal to
// ingestion.
type RawStore interface {
	Save(ctx context.Context, pathHint string, data []byte) (string, error)
	Delete(ctx context.Context, ref string) error
}

// RowsPage is the stored row listing for a dataset.
type RowsPage struct {
	DatasetID  int64          `json:"dataset_id"`
	TotalCount int            `json:"total_count"`
	Data       []EquipmentRow `json:"data"`
}

// SummaryResult is the boundary shape for ingest and summary fetches.
type SummaryResult struct {
	DatasetID int64   `json:"dataset_id"`
	Summary   Summary `json:"summary"`
}
