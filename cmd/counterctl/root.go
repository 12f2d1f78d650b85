package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"counter-chain/internal/config"
	xerrors "counter-chain/internal/errors"
	"counter-chain/internal/notify"
	"counter-chain/internal/observability/metrics"
	"counter-chain/internal/orchestrator"
	"counter-chain/internal/storage/mysql"
	"counter-chain/internal/web3"
	"counter-chain/internal/web3/provider"
	"counter-chain/pkg/logger"
)

// Side effects after the run get their own budget so a run that hit its
// deadline is still recorded.
const reportTimeout = 10 * time.Second

func newRootCommand(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:           "counterctl <program-address>",
		Short:         "Create a counter account, increment it once and print the value",
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), args[0], stdout)
		},
	}
}

func run(ctx context.Context, programArg string, stdout io.Writer) error {
	program, err := web3.ParseAddress(programArg)
	if err != nil {
		return err
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}
	if err := logger.Init(loggerConfig(cfg.Logging)); err != nil {
		return err
	}
	defer logger.Sync()
	log := logger.Named("counterctl")

	if err := os.MkdirAll(cfg.Runtime.DataDir, 0o755); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "create data dir")
	}

	recorder := metrics.NewRecorder()
	registry, err := provider.NewRegistry(cfg.Network,
		provider.WithObserver(recorder),
		provider.WithLogger(logger.Named("simulated")),
	)
	if err != nil {
		return err
	}
	defer registry.Close()

	cluster, err := registry.Default()
	if err != nil {
		return err
	}

	runs, err := mysql.Open(ctx, cfg.Storage.RunStore, cfg.Runtime.DataDir)
	if err != nil {
		return err
	}
	defer runs.Close()

	var audit *slog.Logger
	if cfg.Logging.Audit.Enabled {
		audit = logger.Audit()
	}
	publisher, err := notify.Build(ctx, cfg.Notify, audit)
	if err != nil {
		return err
	}
	defer publisher.Close()

	workflow := orchestrator.NewWorkflow(cluster.Network, orchestrator.Settings{
		Cluster:         cluster.Name,
		ExplorerCluster: cluster.Definition.ExplorerCluster,
		AirdropLamports: cfg.Network.AirdropLamports,
		AccountSpace:    cfg.Workflow.AccountSpace,
		Opcode:          cfg.Workflow.Opcode,
		Submit:          cfg.Submit(),
	},
		orchestrator.WithStageObserver(recorder),
		orchestrator.WithLogger(logger.Named("workflow")),
	)

	transitions := make(chan orchestrator.Transition, 16)
	sub := workflow.SubscribeTransitions(transitions)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for t := range transitions {
			log.Debug("state changed", "run_id", t.RunID, "from", string(t.From), "to", string(t.To))
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, cfg.Workflow.RunTimeout.Std())
	result, runErr := workflow.Run(runCtx, program)
	cancel()
	sub.Unsubscribe()
	close(transitions)
	<-done

	reportCtx, cancelReport := context.WithTimeout(context.WithoutCancel(ctx), reportTimeout)
	defer cancelReport()
	report(reportCtx, log, cfg, result, runErr, runs, publisher, recorder)

	if runErr != nil {
		return runErr
	}

	fmt.Fprintln(stdout, result.ExplorerURL)
	fmt.Fprintf(stdout, "counter key: %s\n", result.Account)
	fmt.Fprintf(stdout, "count: %d\n", result.Value)
	fmt.Fprintln(stdout, "success")
	return nil
}

// report records, publishes and pushes the run outcome. Failures here are
// logged and never change the exit status.
func report(ctx context.Context, log *slog.Logger, cfg *config.Config, result orchestrator.Result, runErr error,
	runs mysql.RunRepository, publisher *notify.Fanout, recorder *metrics.Recorder) {
	record := runRecord(result, runErr)
	if err := runs.Save(ctx, record); err != nil {
		log.Warn("record run failed", "run_id", result.RunID, "error", err)
	}
	if err := publisher.Publish(ctx, outcome(record, runErr)); err != nil {
		log.Warn("publish run failed", "run_id", result.RunID, "error", err)
	}
	recorder.ObserveRun(result.Value, result.FinishedAt, runErr)
	if err := recorder.Push(ctx, cfg.Metrics.PushgatewayURL, cfg.Metrics.Job, result.Cluster); err != nil {
		log.Warn("push metrics failed", "error", err)
	}
}

func runRecord(result orchestrator.Result, runErr error) mysql.RunRecord {
	record := mysql.RunRecord{
		RunID:       result.RunID,
		Cluster:     result.Cluster,
		Program:     result.Program.String(),
		ExplorerURL: result.ExplorerURL,
		Value:       result.Value,
		Status:      mysql.RunSucceeded,
		StartedAt:   result.StartedAt.Unix(),
		FinishedAt:  result.FinishedAt.Unix(),
	}
	if !result.Account.IsZero() {
		record.Account = result.Account.String()
	}
	if !result.FeePayer.IsZero() {
		record.FeePayer = result.FeePayer.String()
	}
	if !result.Signature.IsZero() {
		record.Signature = result.Signature.String()
	}
	if runErr != nil {
		record.Status = mysql.RunFailed
		record.ErrorCode = string(xerrors.CodeOf(runErr))
		record.ErrorMessage = runErr.Error()
	}
	return record
}

func outcome(record mysql.RunRecord, runErr error) notify.Outcome {
	o := notify.Outcome{
		RunID:       record.RunID,
		Cluster:     record.Cluster,
		Program:     record.Program,
		Account:     record.Account,
		Signature:   record.Signature,
		ExplorerURL: record.ExplorerURL,
		Value:       record.Value,
		Status:      string(record.Status),
		ErrorCode:   xerrors.Code(record.ErrorCode),
		Error:       record.ErrorMessage,
		FinishedAt:  time.Unix(record.FinishedAt, 0).UTC(),
	}
	if runErr != nil {
		o.Severity = xerrors.SeverityOf(runErr)
		if e, ok := xerrors.From(runErr); ok {
			o.Metadata = e.Metadata()
		}
	}
	return o
}

func loggerConfig(cfg config.LoggingConfig) logger.Config {
	return logger.Config{
		Level:       cfg.Level,
		Format:      cfg.Format,
		OutputPaths: cfg.Outputs,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Audit.Enabled,
			Path:       cfg.Audit.Path,
			MaxSizeMB:  cfg.Audit.MaxSizeMB,
			MaxBackups: cfg.Audit.MaxBackups,
			MaxAgeDays: cfg.Audit.MaxAgeDays,
			Compress:   cfg.Audit.Compress,
		},
	}
}
