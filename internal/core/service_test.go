package core

import (
	"context"
	"errors"
	"strings"
	"testing"
)

const fiveRowCSV = "Equipment Name,Type,Flowrate,Pressure,Temperature\n" +
	"A,Pump,1,10,100\n" +
	"B,Pump,3,30,120\n" +
	"C,Valve,5,50,90\n" +
	"D,Valve,7,70,80\n" +
	"E,Compressor,9,90,110\n"

func TestNewService_Validation(t *testing.T) {
	if _, err := NewService(nil, &fakeRenderer{}, nil, Options{}); err == nil {
		t.Error("NewService(nil store) error = nil, want error")
	}
	if _, err := NewService(newMemStore(), nil, nil, Options{}); err == nil {
		t.Error("NewService(nil renderer) error = nil, want error")
	}

	svc, err := NewService(newMemStore(), &fakeRenderer{}, nil, Options{})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	if svc.Keep() != DefaultRetentionKeep {
		t.Errorf("Keep() = %d, want %d", svc.Keep(), DefaultRetentionKeep)
	}
}

func TestService_Summary(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	ds, err := env.svc.Ingest(ctx, 1, "five.csv", strings.NewReader(fiveRowCSV))
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	tests := []struct {
		name      string
		limit     string
		wantTotal int
		wantMax   *float64
	}{
		{name: "no limit", limit: "", wantTotal: 5},
		{name: "invalid limit falls back", limit: "abc", wantTotal: 5},
		{name: "zero limit falls back", limit: "0", wantTotal: 5},
		{name: "limit two", limit: "2", wantTotal: 2, wantMax: ptr(120)},
		{name: "limit beyond rows", limit: "100", wantTotal: 5, wantMax: ptr(120)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := env.svc.Summary(ctx, 1, ds.ID, tt.limit)
			if err != nil {
				t.Fatalf("Summary() error = %v", err)
			}
			if res.DatasetID != ds.ID {
				t.Errorf("DatasetID = %d, want %d", res.DatasetID, ds.ID)
			}
			if res.Summary.TotalEquipment != tt.wantTotal {
				t.Errorf("TotalEquipment = %d, want %d", res.Summary.TotalEquipment, tt.wantTotal)
			}
			switch {
			case tt.wantMax == nil && res.Summary.MaxTemperature != nil:
				t.Errorf("MaxTemperature = %v, want absent", *res.Summary.MaxTemperature)
			case tt.wantMax != nil && res.Summary.MaxTemperature == nil:
				t.Errorf("MaxTemperature absent, want %v", *tt.wantMax)
			case tt.wantMax != nil && *res.Summary.MaxTemperature != *tt.wantMax:
				t.Errorf("MaxTemperature = %v, want %v", *res.Summary.MaxTemperature, *tt.wantMax)
			}
		})
	}

	t.Run("other user gets not found", func(t *testing.T) {
		_, err := env.svc.Summary(ctx, 2, ds.ID, "")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Summary() error = %v, want ErrNotFound", err)
		}
	})
}

func ptr(f float64) *float64 { return &f }

func TestService_Rows(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	ds, err := env.svc.Ingest(ctx, 1, "five.csv", strings.NewReader(fiveRowCSV))
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	page, err := env.svc.Rows(ctx, 1, ds.ID, "3")
	if err != nil {
		t.Fatalf("Rows() error = %v", err)
	}
	if page.TotalCount != 5 {
		t.Errorf("TotalCount = %d, want 5", page.TotalCount)
	}
	if len(page.Data) != 3 || page.Data[0].Name != "A" || page.Data[2].Name != "C" {
		t.Errorf("Data = %+v, want A..C", page.Data)
	}

	page, err = env.svc.Rows(ctx, 1, ds.ID, "")
	if err != nil {
		t.Fatalf("Rows() error = %v", err)
	}
	if len(page.Data) != 5 {
		t.Errorf("len(Data) without limit = %d, want 5", len(page.Data))
	}

	if _, err := env.svc.Rows(ctx, 9, ds.ID, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("Rows(other user) error = %v, want ErrNotFound", err)
	}
}

func TestService_RowsLimitZero(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	ds, err := env.svc.Ingest(ctx, 1, "five.csv", strings.NewReader(fiveRowCSV))
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	tests := []struct {
		limit    string
		wantRows int
	}{
		{"0", 0},
		{" 0 ", 0},
		{"-1", 5},
		{"abc", 5},
	}
	for _, tt := range tests {
		t.Run(tt.limit, func(t *testing.T) {
			page, err := env.svc.Rows(ctx, 1, ds.ID, tt.limit)
			if err != nil {
				t.Fatalf("Rows() error = %v", err)
			}
			if page.Data == nil || len(page.Data) != tt.wantRows {
				t.Errorf("len(Data) = %d, want %d", len(page.Data), tt.wantRows)
			}
			if page.TotalCount != 5 {
				t.Errorf("TotalCount = %d, want 5", page.TotalCount)
			}
		})
	}
}

func TestService_RowsEmptyDataset(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	ds, err := env.svc.Ingest(ctx, 1, "empty.csv", strings.NewReader("Equipment Name,Type,Flowrate,Pressure,Temperature\n"))
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	page, err := env.svc.Rows(ctx, 1, ds.ID, "")
	if err != nil {
		t.Fatalf("Rows() error = %v", err)
	}
	if page.Data == nil || len(page.Data) != 0 || page.TotalCount != 0 {
		t.Errorf("page = %+v, want empty non-nil data", page)
	}
}

func TestService_History(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	empty, err := env.svc.History(ctx, 1)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("History() on no uploads = %v, want empty slice", empty)
	}

	sets := ingestN(t, env, 1, 3)
	got, err := env.svc.History(ctx, 1)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len(History()) = %d, want 3", len(got))
	}
	if got[0].ID != sets[2].ID || got[2].ID != sets[0].ID {
		t.Errorf("History() order = %d,%d,%d, want newest first", got[0].ID, got[1].ID, got[2].ID)
	}
}

func TestService_Purge(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	sets := ingestN(t, env, 1, 2)
	ingestN(t, env, 2, 1)
	if _, err := env.svc.GetOrCreateReport(ctx, 1, sets[0].ID); err != nil {
		t.Fatalf("GetOrCreateReport() error = %v", err)
	}

	res, failed, err := env.svc.Purge(ctx, true)
	if err != nil {
		t.Fatalf("Purge() error = %v", err)
	}
	if res.Datasets != 3 || res.Rows != 6 || res.Reports != 1 {
		t.Errorf("Purge() = %+v, want 3 datasets, 6 rows, 1 report", res)
	}
	if failed != 0 {
		t.Errorf("failed media deletes = %d, want 0", failed)
	}
	if env.raw.Len() != 0 {
		t.Errorf("raw files after purge = %d, want 0", env.raw.Len())
	}

	ds, err := env.svc.Ingest(ctx, 1, "again.csv", strings.NewReader(pumpValveCSV))
	if err != nil {
		t.Fatalf("Ingest() after purge error = %v", err)
	}
	rf, err := env.svc.GetOrCreateReport(ctx, 1, ds.ID)
	if err != nil {
		t.Fatalf("GetOrCreateReport() after purge error = %v", err)
	}
	if rf.Report.Number != 1 {
		t.Errorf("first number after purge = %d, want 1", rf.Report.Number)
	}
}

func TestService_PurgeKeepsMedia(t *testing.T) {
	env := newTestEnv()
	ingestN(t, env, 1, 2)

	if _, _, err := env.svc.Purge(context.Background(), false); err != nil {
		t.Fatalf("Purge() error = %v", err)
	}
	if env.raw.Len() != 2 {
		t.Errorf("raw files = %d, want 2 when media is kept", env.raw.Len())
	}
}

func TestService_SweepRetention(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	ingestN(t, env, 1, 5)
	ingestN(t, env, 2, 2)

	env.store.failDelete = errors.New("store unavailable")
	ingestN(t, env, 1, 2)
	env.store.failDelete = nil

	res, err := env.svc.SweepRetention(ctx)
	if err != nil {
		t.Fatalf("SweepRetention() error = %v", err)
	}
	if res.Users != 1 || res.Datasets != 2 || res.Failed != 0 {
		t.Errorf("SweepRetention() = %+v, want 1 user, 2 datasets", res)
	}

	ids, _ := env.store.ListDatasetIDs(ctx, 1)
	if len(ids) != DefaultRetentionKeep {
		t.Errorf("user 1 datasets = %d, want %d", len(ids), DefaultRetentionKeep)
	}
}

func TestService_StartRetentionSweepDisabled(t *testing.T) {
	env := newTestEnv()

	done := make(chan struct{})
	go func() {
		env.svc.StartRetentionSweep(context.Background(), 0)
		close(done)
	}()
	<-done
}
