// Command deid runs a single batch de-identification pass over the
// three APCD relations (eligibility, provider, medical) and serves an
// admin HTTP surface while it does: load config, bring up optional
// infrastructure (database, event store, timestamp authority) in
// "warn and degrade" fashion rather than refusing to start, then run
// the pipeline.
package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-sql/civil"

	"github.com/txapcd/deid-engine/internal/age"
	"github.com/txapcd/deid-engine/internal/api"
	"github.com/txapcd/deid-engine/internal/audit"
	"github.com/txapcd/deid-engine/internal/classify"
	"github.com/txapcd/deid-engine/internal/dates"
	"github.com/txapcd/deid-engine/internal/geo"
	"github.com/txapcd/deid-engine/internal/keys"
	"github.com/txapcd/deid-engine/internal/kurrentdb"
	"github.com/txapcd/deid-engine/internal/pipeline"
	"github.com/txapcd/deid-engine/internal/rarity"
	"github.com/txapcd/deid-engine/internal/shared/config"
	"github.com/txapcd/deid-engine/internal/shared/types"
	"github.com/txapcd/deid-engine/internal/storage"
	"github.com/txapcd/deid-engine/internal/transform"
	"github.com/txapcd/deid-engine/internal/tsa"
	"github.com/txapcd/deid-engine/internal/validation"
)

// App holds the dependencies a run needs, so each piece of
// infrastructure is wired once and handed to whatever uses it.
type App struct {
	Config  *config.Config
	DB      *storage.DB
	Audit   *audit.Recorder
	TSA     *tsa.Server
	Reports *api.ReportHolder
}

func main() {
	ctx := context.Background()
	runID := types.NewID()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	app := &App{Config: cfg, Reports: &api.ReportHolder{}}

	db, err := storage.New(ctx, cfg.Database)
	if err != nil {
		fmt.Printf("Warning: database not available: %v\n", err)
		fmt.Println("Running without a database; the pipeline has nothing to read or write.")
	} else {
		app.DB = db
		defer db.Close()

		if err := storage.Migrate(ctx, db.Pool); err != nil {
			fmt.Printf("Warning: migration failed: %v\n", err)
		}
	}

	var sink audit.EventSink = audit.NullSink{}
	kdbCfg := kurrentdb.LoadConfig()
	if kdbCfg.Host != "" {
		client, err := kurrentdb.NewClient(kdbCfg)
		if err != nil {
			fmt.Printf("Warning: KurrentDB client could not be created: %v\n", err)
		} else if err := client.Connect(ctx); err != nil {
			fmt.Printf("Warning: KurrentDB not reachable: %v\n", err)
		} else {
			sink = kurrentdb.NewSink(client)
			defer client.Close()
			fmt.Println("Audit trail forwarding to KurrentDB")
		}
	} else {
		fmt.Println("KURRENTDB_HOST not set; audit trail is hashed and chained but not forwarded")
	}
	app.Audit = audit.NewRecorder(runID, sink)

	if cfg.TSA.Enabled {
		server, err := tsa.NewServerWithGeneratedCert(cfg.TSA.OrgName)
		if err != nil {
			fmt.Printf("Warning: TSA server could not be initialized: %v\n", err)
		} else {
			app.TSA = server
			fmt.Println("Timestamp authority enabled (self-signed, in-process)")
		}
	}

	// api.NewRouter takes a Pinger interface; pass a genuinely nil
	// interface (not a nil *storage.DB wrapped in a non-nil interface)
	// when there's no database, since Pinger.Health would otherwise be
	// called on a nil receiver.
	var pinger api.Pinger
	if app.DB != nil {
		pinger = app.DB
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.NewRouter(cfg.Server, pinger, app.Reports),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	done := make(chan bool)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		fmt.Println("\nShutting down admin server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Admin server shutdown error: %v\n", err)
		}
		close(done)
	}()

	go func() {
		fmt.Printf("Admin server listening on :%d (/healthz, /metrics, /report)\n", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "admin server error: %v\n", err)
		}
	}()

	if app.DB != nil {
		if err := app.run(ctx, runID); err != nil {
			fmt.Fprintf(os.Stderr, "pipeline run failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		fmt.Println("Skipping pipeline run: no database configured")
	}

	quit <- syscall.SIGTERM
	<-done
	fmt.Println("Shut down")
}

// run executes the three-relation de-identification pass and
// timestamps the resulting validation report.
func (app *App) run(ctx context.Context, runID types.ID) error {
	cfg := app.Config

	if err := app.Audit.RecordLifecycle(ctx, audit.ActionRunStarted, map[string]any{"run_id": runID.String()}); err != nil {
		return fmt.Errorf("recording run start: %w", err)
	}

	ks, err := keys.LoadOrGenerate(cfg.Deid.SecretKeysPath)
	if err != nil {
		return fmt.Errorf("loading pseudonym keys: %w", err)
	}

	var zipTable, fipsTable geo.PopulationTable
	if cfg.Deid.PopulationTablePath != "" {
		zipTable, err = geo.LoadCSV(cfg.Deid.PopulationTablePath)
		if err != nil {
			return fmt.Errorf("loading population table: %w", err)
		}
	}
	if cfg.Deid.CountyTablePath != "" {
		fipsTable, err = geo.LoadCSV(cfg.Deid.CountyTablePath)
		if err != nil {
			return fmt.Errorf("loading county table: %w", err)
		}
	}
	generalizer := geo.NewGeneralizer(zipTable, fipsTable, cfg.Deid.PopulationThreshold)

	now := time.Now()
	refDate := civil.Date{Year: now.Year(), Month: now.Month(), Day: now.Day()}
	if cfg.Deid.ReferenceDate != "" {
		if parsed, ok := dates.ParseCivil(cfg.Deid.ReferenceDate); ok {
			refDate = parsed
		} else {
			fmt.Printf("Warning: DEID_REFERENCE_DATE %q did not parse; using today\n", cfg.Deid.ReferenceDate)
		}
	}
	bucketer := age.Bucketer{ReferenceDate: refDate, HIVDrugBucketing: cfg.Deid.HIVDrugBucketing}

	validator := validation.NewValidator()

	p := &pipeline.Pipeline{
		Keys:       ks,
		Geo:        generalizer,
		Age:        bucketer,
		Classifier: classify.Classifier{},
		Submitter:  cfg.Deid.DataSubmitterCode,
		Config:     pipeline.Config{ChunkSize: cfg.Deid.ChunkSize},
		Audit:      app.Audit,
		Validation: validator,
	}

	pool := app.DB.Pool
	ageLookup := make(transform.AgeLookup)

	eligSrc := storage.NewRelationSource(pool, "eligibility", "id")
	eligSink := storage.NewRelationSink(pool, "eligibility_deid")
	if err := p.RunEligibility(ctx, eligSrc, eligSink, ageLookup); err != nil {
		return fmt.Errorf("eligibility pass: %w", err)
	}
	if err := storage.NewAgeLookupSink(pool).Persist(ctx, toIntLookup(ageLookup)); err != nil {
		return fmt.Errorf("persisting age lookup: %w", err)
	}
	if err := app.Audit.RecordEvent(ctx, pipeline.RelationEligibility, "phase_completed", nil); err != nil {
		return fmt.Errorf("recording eligibility completion: %w", err)
	}

	provSrc := storage.NewRelationSource(pool, "provider", "id")
	provSink := storage.NewRelationSink(pool, "provider_deid")
	if err := p.RunProvider(ctx, provSrc, provSink); err != nil {
		return fmt.Errorf("provider pass: %w", err)
	}
	if err := app.Audit.RecordEvent(ctx, pipeline.RelationProvider, "phase_completed", nil); err != nil {
		return fmt.Errorf("recording provider completion: %w", err)
	}

	rarityBuildSrc := storage.NewRelationSource(pool, "medical", "id")
	idx, err := pipeline.BuildRarityIndex(ctx, rarityBuildSrc, cfg.Deid.ChunkSize, cfg.Deid.RarityThresholdK)
	if err != nil {
		return fmt.Errorf("building rarity index: %w", err)
	}
	if err := app.Audit.RecordLifecycle(ctx, audit.ActionRarityBuilt, map[string]any{
		"rare_diagnosis_codes": idx.RareCount(rarity.VocabularyDiagnosis),
		"rare_procedure_codes": idx.RareCount(rarity.VocabularyProcedure),
		"rare_drug_codes":      idx.RareCount(rarity.VocabularyDrug),
	}); err != nil {
		return fmt.Errorf("recording rarity build: %w", err)
	}

	medSrc := storage.NewRelationSource(pool, "medical", "id")
	medSink := storage.NewRelationSink(pool, "medical_deid")
	if err := p.RunMedical(ctx, medSrc, medSink, idx, ageLookup); err != nil {
		return fmt.Errorf("medical pass: %w", err)
	}
	if err := app.Audit.RecordEvent(ctx, pipeline.RelationMedical, "phase_completed", nil); err != nil {
		return fmt.Errorf("recording medical completion: %w", err)
	}

	report := validator.Finalize()
	app.Reports.Set(report)

	if !report.Passed() {
		if err := app.Audit.RecordLifecycle(ctx, audit.ActionValidationFailed, map[string]any{"issues": report.Issues}); err != nil {
			return fmt.Errorf("recording validation failure: %w", err)
		}
		fmt.Printf("Validation failed: %s\n", report.Summary())
	} else {
		fmt.Printf("Validation passed: %s\n", report.Summary())
	}

	digest := sha256.Sum256([]byte(report.Summary()))
	digestHex := hex.EncodeToString(digest[:])
	if app.TSA != nil {
		ts, err := app.TSA.TimestampHash(ctx, digestHex)
		if err != nil {
			fmt.Printf("Warning: failed to timestamp validation report: %v\n", err)
		} else {
			fmt.Printf("Validation report witnessed at %s (serial %d)\n", ts.Timestamp, ts.SerialNumber)
		}
	}

	if err := app.Audit.RecordLifecycle(ctx, audit.ActionRunCompleted, map[string]any{
		"report_digest": digestHex,
		"passed":        report.Passed(),
	}); err != nil {
		return fmt.Errorf("recording run completion: %w", err)
	}

	return nil
}

func toIntLookup(lookup transform.AgeLookup) map[string]int {
	out := make(map[string]int, len(lookup))
	for k, v := range lookup {
		out[k] = int(v)
	}
	return out
}
