// Package assistant runs the request pipelines: answering questions about a
// table, showing and plotting its rows, and provisioning, restoring or
// dropping tables.
// Every operation opens its own database session and releases it on return.
package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tabletalk/tabletalk/internal/archive"
	"github.com/tabletalk/tabletalk/internal/catalog"
	"github.com/tabletalk/tabletalk/internal/database"
	"github.com/tabletalk/tabletalk/internal/errs"
	"github.com/tabletalk/tabletalk/internal/guard"
	"github.com/tabletalk/tabletalk/internal/nl2sql"
	"github.com/tabletalk/tabletalk/internal/observability"
	"github.com/tabletalk/tabletalk/internal/query"
	"github.com/tabletalk/tabletalk/internal/storage"
)

// Archiver keeps a copy of provisioned rows outside the database.
type Archiver interface {
	Archive(ctx context.Context, def catalog.TableDef, rows []catalog.Row) (storage.ObjectInfo, error)
	Load(ctx context.Context, tableName string) (archive.Dataset, error)
	Remove(ctx context.Context, tableName string) error
}

type Service struct {
	opener      database.Opener
	translator  *nl2sql.Translator
	synthesizer *nl2sql.Synthesizer
	classifier  *nl2sql.PlotClassifier
	archive     Archiver
	logger      *slog.Logger
}

type Deps struct {
	Opener      database.Opener
	Translator  *nl2sql.Translator
	Synthesizer *nl2sql.Synthesizer
	Classifier  *nl2sql.PlotClassifier
	// Archive is optional.
	Archive Archiver
	Logger  *slog.Logger
}

func New(deps Deps) (*Service, error) {
	if deps.Opener == nil {
		return nil, fmt.Errorf("database opener is required")
	}
	if deps.Translator == nil || deps.Synthesizer == nil || deps.Classifier == nil {
		return nil, fmt.Errorf("translator, synthesizer and classifier are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		opener:      deps.Opener,
		translator:  deps.Translator,
		synthesizer: deps.Synthesizer,
		classifier:  deps.Classifier,
		archive:     deps.Archive,
		logger:      logger,
	}, nil
}

// PlotResult pairs the chart descriptor with every row of the table.
type PlotResult struct {
	Plot guard.PlotDescriptor `json:"plotData"`
	Data query.Result         `json:"allData"`
}

// Ask answers question in prose from the rows its generated query returns.
func (s *Service) Ask(ctx context.Context, tableName, question string) (string, error) {
	const op errs.Op = "assistant.Ask"
	if err := checkQuestion(tableName, question); err != nil {
		return "", errs.E(op, err)
	}
	sess, err := s.opener.Open(ctx)
	if err != nil {
		return "", errs.E(op, err)
	}
	defer s.closeSession(ctx, sess)

	metadata, result, err := s.run(ctx, sess, tableName, question)
	if err != nil {
		return "", errs.E(op, err)
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return "", errs.E(errs.Internal, op, fmt.Errorf("encode query result: %w", err))
	}
	answer, err := s.synthesizer.Synthesize(ctx, question, metadata, string(resultJSON))
	if err != nil {
		return "", errs.E(op, err)
	}
	return answer, nil
}

// Show returns the rows of the generated query.
func (s *Service) Show(ctx context.Context, tableName, question string) (query.Result, error) {
	const op errs.Op = "assistant.Show"
	if err := checkQuestion(tableName, question); err != nil {
		return query.Result{}, errs.E(op, err)
	}
	sess, err := s.opener.Open(ctx)
	if err != nil {
		return query.Result{}, errs.E(op, err)
	}
	defer s.closeSession(ctx, sess)

	_, result, err := s.run(ctx, sess, tableName, question)
	if err != nil {
		return query.Result{}, errs.E(op, err)
	}
	return result, nil
}

func (s *Service) Plot(ctx context.Context, tableName, question string) (PlotResult, error) {
	const op errs.Op = "assistant.Plot"
	if err := checkQuestion(tableName, question); err != nil {
		return PlotResult{}, errs.E(op, err)
	}
	sess, err := s.opener.Open(ctx)
	if err != nil {
		return PlotResult{}, errs.E(op, err)
	}
	defer s.closeSession(ctx, sess)

	metadata, err := sess.Catalog().GetMetadata(ctx, tableName)
	if err != nil {
		return PlotResult{}, errs.E(op, err)
	}
	descriptor, err := s.classifier.Classify(ctx, question, metadata)
	if err != nil {
		return PlotResult{}, errs.E(op, err)
	}
	data, err := sess.Query().Execute(ctx, query.Request{SQL: guard.DefaultQuery(tableName)})
	if err != nil {
		return PlotResult{}, errs.E(op, err)
	}
	return PlotResult{Plot: descriptor, Data: data}, nil
}

// Provision creates the table described by raw, registers its definition
// and loads its rows. When a later step fails the earlier ones are undone.
func (s *Service) Provision(ctx context.Context, raw string) (catalog.TableDef, error) {
	const op errs.Op = "assistant.Provision"
	def, rows, err := ParseProvisionPayload(raw)
	if err != nil {
		return catalog.TableDef{}, errs.E(errs.Validation, op, err)
	}
	inserted, err := s.materialize(ctx, def, rows)
	if err != nil {
		return catalog.TableDef{}, errs.E(op, err)
	}

	observability.ObserveTableProvisioned(inserted)
	observability.LoggerWithTrace(ctx, s.logger).InfoContext(ctx, "table_provisioned",
		slog.String("table", def.Name),
		slog.Int("columns", len(def.Columns)),
		slog.Int("rows", inserted),
	)
	s.archiveRows(ctx, def, rows)
	return def, nil
}

// Restore provisions a table again from its archived dataset. The table
// must not exist in the current schema.
func (s *Service) Restore(ctx context.Context, tableName string) (catalog.TableDef, error) {
	const op errs.Op = "assistant.Restore"
	if !guard.IsIdentifier(tableName) {
		return catalog.TableDef{}, errs.E(errs.Validation, op, fmt.Errorf("invalid table name %q", tableName))
	}
	if s.archive == nil {
		return catalog.TableDef{}, errs.E(errs.Config, op, errors.New("dataset archive is not enabled"))
	}
	dataset, err := s.archive.Load(ctx, tableName)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return catalog.TableDef{}, errs.E(errs.ExecutionNotFound, op, fmt.Errorf("no archived dataset for table %s: %w", tableName, err))
	}
	if err != nil {
		observability.IncrementArchiveFailure("load")
		return catalog.TableDef{}, errs.E(errs.Internal, op, err)
	}
	if dataset.Table.Name != tableName {
		return catalog.TableDef{}, errs.E(errs.Internal, op, fmt.Errorf("archived dataset for %s holds table %q", tableName, dataset.Table.Name))
	}

	inserted, err := s.materialize(ctx, dataset.Table, dataset.Rows)
	if err != nil {
		return catalog.TableDef{}, errs.E(op, err)
	}

	observability.ObserveTableRestored(inserted)
	observability.LoggerWithTrace(ctx, s.logger).InfoContext(ctx, "table_restored",
		slog.String("table", tableName),
		slog.Int("columns", len(dataset.Table.Columns)),
		slog.Int("rows", inserted),
	)
	return dataset.Table, nil
}

// materialize creates, registers and loads a table on a fresh session.
// When a later step fails the earlier ones are undone.
func (s *Service) materialize(ctx context.Context, def catalog.TableDef, rows []catalog.Row) (int, error) {
	sess, err := s.opener.Open(ctx)
	if err != nil {
		return 0, err
	}
	defer s.closeSession(ctx, sess)

	repo := sess.Catalog()
	if err := repo.CreateTable(ctx, def); err != nil {
		return 0, err
	}
	if err := repo.RegisterTable(ctx, def); err != nil {
		s.compensate(ctx, repo, def.Name, false)
		return 0, err
	}
	inserted, err := repo.InsertRows(ctx, def, rows)
	if err != nil {
		s.compensate(ctx, repo, def.Name, true)
		return 0, err
	}
	return inserted, nil
}

// Drop removes a table and its registry entry. A table missing from the
// current schema is reported as not found.
func (s *Service) Drop(ctx context.Context, tableName string) error {
	const op errs.Op = "assistant.Drop"
	if !guard.IsIdentifier(tableName) {
		return errs.E(errs.Validation, op, fmt.Errorf("invalid table name %q", tableName))
	}
	sess, err := s.opener.Open(ctx)
	if err != nil {
		return errs.E(op, err)
	}
	defer s.closeSession(ctx, sess)

	repo := sess.Catalog()
	exists, err := repo.TableExists(ctx, tableName)
	if err != nil {
		return errs.E(op, err)
	}
	if !exists {
		return errs.E(errs.ExecutionNotFound, op, fmt.Errorf("table %s does not exist: %w", tableName, catalog.ErrNotFound))
	}
	if err := repo.DropTable(ctx, tableName); err != nil {
		return errs.E(op, err)
	}
	if err := repo.DeleteMetadata(ctx, tableName); err != nil {
		return errs.E(op, err)
	}

	observability.IncrementTableDropped()
	observability.LoggerWithTrace(ctx, s.logger).InfoContext(ctx, "table_dropped", slog.String("table", tableName))
	s.removeArchive(ctx, tableName)
	return nil
}

// Ready reports whether a session can be opened and the database answers.
func (s *Service) Ready(ctx context.Context) error {
	sess, err := s.opener.Open(ctx)
	if err != nil {
		return err
	}
	defer s.closeSession(ctx, sess)
	return sess.Catalog().HealthCheck(ctx)
}

func (s *Service) run(ctx context.Context, sess database.Session, tableName, question string) (string, query.Result, error) {
	metadata, err := sess.Catalog().GetMetadata(ctx, tableName)
	if err != nil {
		return "", query.Result{}, err
	}
	translation, err := s.translator.Translate(ctx, question, tableName, metadata)
	if err != nil {
		return "", query.Result{}, err
	}
	result, err := sess.Query().Execute(ctx, query.Request{SQL: translation.SQL})
	if err != nil {
		return "", query.Result{}, err
	}
	return metadata, result, nil
}

func (s *Service) compensate(ctx context.Context, repo catalog.Repository, tableName string, registered bool) {
	logger := observability.LoggerWithTrace(ctx, s.logger).With(slog.String("table", tableName))
	if err := repo.DropTable(ctx, tableName); err != nil {
		logger.ErrorContext(ctx, "provision_rollback_failed", slog.String("step", "drop_table"), slog.String("error", err.Error()))
	}
	if !registered {
		return
	}
	if err := repo.DeleteMetadata(ctx, tableName); err != nil {
		logger.ErrorContext(ctx, "provision_rollback_failed", slog.String("step", "delete_metadata"), slog.String("error", err.Error()))
	}
}

func (s *Service) archiveRows(ctx context.Context, def catalog.TableDef, rows []catalog.Row) {
	if s.archive == nil {
		return
	}
	info, err := s.archive.Archive(ctx, def, rows)
	if err != nil {
		observability.IncrementArchiveFailure("archive")
		observability.LoggerWithTrace(ctx, s.logger).WarnContext(ctx, "table_archive_failed",
			slog.String("table", def.Name),
			slog.String("error", err.Error()),
		)
		return
	}
	observability.LoggerWithTrace(ctx, s.logger).DebugContext(ctx, "table_archived",
		slog.String("table", def.Name),
		slog.String("key", info.Key),
		slog.Int64("bytes", info.Size),
	)
}

func (s *Service) removeArchive(ctx context.Context, tableName string) {
	if s.archive == nil {
		return
	}
	if err := s.archive.Remove(ctx, tableName); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		observability.IncrementArchiveFailure("remove")
		observability.LoggerWithTrace(ctx, s.logger).WarnContext(ctx, "table_archive_remove_failed",
			slog.String("table", tableName),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Service) closeSession(ctx context.Context, sess database.Session) {
	if err := sess.Close(); err != nil {
		observability.LoggerWithTrace(ctx, s.logger).WarnContext(ctx, "session_close_failed", slog.String("error", err.Error()))
	}
}

func checkQuestion(tableName, question string) error {
	if !guard.IsIdentifier(tableName) {
		return errs.E(errs.Validation, fmt.Errorf("invalid table name %q", tableName))
	}
	if strings.TrimSpace(question) == "" {
		return errs.E(errs.Validation, fmt.Errorf("question is required: %w", nl2sql.ErrInvalidInput))
	}
	return nil
}
