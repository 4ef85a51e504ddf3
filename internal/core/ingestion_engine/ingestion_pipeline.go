package ingestion_engine

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/markdave123-py/studybuddy/internal/core"
	"github.com/markdave123-py/studybuddy/internal/logging"
	"github.com/markdave123-py/studybuddy/internal/models"
)

const (
	uploadCourseID   = "direct-upload"
	uploadCourseName = "Direct Upload"
	recentLimit      = 5
)

// NewDocumentIngestor wires the pipeline. Zero config values fall back to the defaults.
func NewDocumentIngestor(deps Deps, cfg *IngestConfig) *DocumentIngestor {
	if cfg == nil {
		cfg = &IngestConfig{}
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = defaultChunkOverlap
	}
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = 64
	}
	return &DocumentIngestor{
		Deps:        deps,
		cfg:         cfg,
		logger:      logging.OrDefault(deps.Logger).With("component", "ingestor"),
		now:         time.Now,
		countTokens: countTokens,
	}
}

// docJob carries one document through the stages.
type docJob struct {
	doc         models.ExternalDocument
	data        []byte
	contentType string
	text        string
	chunks      []Chunk
	vectors     [][]float32
	upserted    int
}

type stage struct {
	name string
	run  func(ctx context.Context, job *docJob) error
}

// pipeline lists the stages in order. Uploads arrive with their bytes and skip fetch.
func (i *DocumentIngestor) pipeline(fetch bool) []stage {
	var stages []stage
	if fetch {
		stages = append(stages, stage{"fetch", i.fetch})
	}
	return append(stages,
		stage{"extract", i.extract},
		stage{"chunk", i.chunk},
		stage{"embed", i.embed},
		stage{"upsert", i.upsert},
		stage{"mark", i.mark},
	)
}

// IngestCourse syncs every new lecture of a course. Document failures are
// recorded in the report; a credential failure stops the run and returns the
// partial report together with the error.
func (i *DocumentIngestor) IngestCourse(ctx context.Context, courseID string) (*IngestionReport, error) {
	subjectID := courseID
	if i.Subjects != nil {
		subjectID = i.Subjects.SubjectFor(courseID)
	}

	report := &IngestionReport{
		RunID:     uuid.NewString(),
		CourseID:  courseID,
		SubjectID: subjectID,
		Results:   []DocumentResult{},
		StartedAt: i.now(),
	}
	log := i.logger.With("run", report.RunID, "course", courseID)
	finish := func(err error) (*IngestionReport, error) {
		report.FinishedAt = i.now()
		return report, err
	}

	docs, err := i.Source.ListDocuments(ctx, courseID)
	if err != nil {
		return finish(fmt.Errorf("list documents: %w", err))
	}
	report.Total = len(docs)

	withAsset := make([]models.ExternalDocument, 0, len(docs))
	for _, d := range docs {
		if d.HasAsset() {
			withAsset = append(withAsset, d)
		}
	}
	report.WithAsset = len(withAsset)

	pending, err := i.unprocessed(ctx, withAsset)
	if err != nil {
		return finish(fmt.Errorf("load processed hashes: %w", err))
	}
	report.AlreadyProcessed = len(withAsset) - len(pending)
	log.Info("sync started", "total", report.Total, "withAsset", report.WithAsset, "new", len(pending))

	for _, doc := range pending {
		doc.SubjectID = subjectID
		res, err := i.runStages(ctx, &docJob{doc: doc}, i.pipeline(true))
		report.Results = append(report.Results, res)

		if res.State == StateSuccess {
			report.NewlyProcessed++
		} else {
			report.Failed++
		}

		if errors.Is(err, core.ErrCredential) {
			log.Error("sync aborted", "hash", doc.Hash, "err", err)
			return finish(err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return finish(ctxErr)
		}
	}

	log.Info("sync finished", "newlyProcessed", report.NewlyProcessed, "failed", report.Failed)
	return finish(nil)
}

// IngestUpload ingests a PDF or slide deck posted directly by an operator.
// The file name is the idempotency key.
func (i *DocumentIngestor) IngestUpload(ctx context.Context, subjectID, filename, contentType string, data []byte) (DocumentResult, error) {
	if subjectID == "" {
		return DocumentResult{}, errors.New("subject id is required")
	}

	doc := models.ExternalDocument{
		Hash:       uploadHash(filename),
		Title:      filename,
		CourseID:   uploadCourseID,
		CourseName: uploadCourseName,
		SubjectID:  subjectID,
	}
	res := DocumentResult{Hash: doc.Hash, Title: doc.Title}

	if documentKind(data, contentType) == kindOther {
		res.State = StateFailed
		res.Error = fmt.Sprintf("unsupported content type %q", contentType)
		return res, nil
	}

	processed, err := i.Store.ProcessedHashes(ctx, []string{doc.Hash})
	if err != nil {
		return res, fmt.Errorf("load processed hashes: %w", err)
	}
	if processed[doc.Hash] {
		res.State = StateAlreadyProcessed
		return res, nil
	}

	job := &docJob{doc: doc, data: data, contentType: contentType}
	i.archive(ctx, archiveKey(doc, path.Ext(filename)), data, contentType)

	res, err = i.runStages(ctx, job, i.pipeline(false))
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return res, err
	}
	return res, nil
}

// SyncStatus reports how many documents are processed and the most recent ones.
func (i *DocumentIngestor) SyncStatus(ctx context.Context) (*models.SyncStatus, error) {
	total, err := i.Store.CountProcessed(ctx)
	if err != nil {
		return nil, fmt.Errorf("count processed: %w", err)
	}
	recent, err := i.Store.RecentProcessed(ctx, recentLimit)
	if err != nil {
		return nil, fmt.Errorf("recent processed: %w", err)
	}
	if recent == nil {
		recent = []models.ProcessedDocument{}
	}
	return &models.SyncStatus{TotalProcessed: total, RecentDocuments: recent}, nil
}

// unprocessed drops documents whose hash already has a processed record.
func (i *DocumentIngestor) unprocessed(ctx context.Context, docs []models.ExternalDocument) ([]models.ExternalDocument, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	hashes := make([]string, len(docs))
	for k, d := range docs {
		hashes[k] = d.Hash
	}
	processed, err := i.Store.ProcessedHashes(ctx, hashes)
	if err != nil {
		return nil, err
	}
	return subtractProcessed(docs, processed), nil
}

func subtractProcessed(docs []models.ExternalDocument, processed map[string]bool) []models.ExternalDocument {
	out := make([]models.ExternalDocument, 0, len(docs))
	for _, d := range docs {
		if !processed[d.Hash] {
			out = append(out, d)
		}
	}
	return out
}

// runStages executes stages in order and stops at the first failure.
func (i *DocumentIngestor) runStages(ctx context.Context, job *docJob, stages []stage) (DocumentResult, error) {
	res := DocumentResult{Hash: job.doc.Hash, Title: job.doc.Title}
	log := i.logger.With("hash", job.doc.Hash, "title", job.doc.Title)

	for _, s := range stages {
		if err := s.run(ctx, job); err != nil {
			if s.name == "upsert" || s.name == "mark" {
				i.dropVectors(job)
			}
			res.State = StateFailed
			res.Stage = s.name
			res.Error = err.Error()
			log.Warn("document failed", "stage", s.name, "err", err)
			return res, err
		}
	}

	res.State = StateSuccess
	res.VectorCount = job.upserted
	log.Info("document processed", "chunks", len(job.chunks), "vectors", job.upserted)
	return res, nil
}

func (i *DocumentIngestor) fetch(ctx context.Context, job *docJob) error {
	key := archiveKey(job.doc, assetExt(job.doc.AssetURL))

	if i.Archive != nil {
		data, ct, err := i.Archive.GetFile(ctx, key)
		if err == nil {
			job.data, job.contentType = data, ct
			return nil
		}
		if !errors.Is(err, core.ErrObjectNotFound) {
			i.logger.Warn("archive read failed", "key", key, "err", err)
		}
	}

	data, ct, err := i.Source.DownloadAsset(ctx, job.doc.AssetURL)
	if err != nil {
		return fmt.Errorf("download asset: %w", err)
	}
	job.data, job.contentType = data, ct
	i.archive(ctx, key, data, ct)
	return nil
}

func (i *DocumentIngestor) extract(ctx context.Context, job *docJob) error {
	text, err := i.Extractor.ExtractText(ctx, job.data, job.contentType)
	if err != nil {
		return err
	}
	job.text = text
	job.data = nil
	return nil
}

func (i *DocumentIngestor) chunk(_ context.Context, job *docJob) error {
	job.chunks = buildChunks(job.text, i.cfg.ChunkSize, i.cfg.ChunkOverlap, i.countTokens)
	if len(job.chunks) == 0 {
		return core.ErrNoContent
	}
	return nil
}

func (i *DocumentIngestor) embed(ctx context.Context, job *docJob) error {
	vectors := make([][]float32, 0, len(job.chunks))

	want := i.Embedder.Dimensions()
	for start := 0; start < len(job.chunks); start += i.cfg.EmbedBatchSize {
		end := min(start+i.cfg.EmbedBatchSize, len(job.chunks))
		texts := make([]string, 0, end-start)
		for _, c := range job.chunks[start:end] {
			texts = append(texts, c.Text)
		}

		vecs, err := i.Embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed chunks %d-%d: %w", start, end-1, err)
		}
		if len(vecs) != len(texts) {
			return fmt.Errorf("%w: got %d vectors for %d chunks", core.ErrEmbedding, len(vecs), len(texts))
		}
		for _, v := range vecs {
			if want > 0 && len(v) != want {
				return fmt.Errorf("%w: dimension %d, want %d", core.ErrEmbedding, len(v), want)
			}
		}
		vectors = append(vectors, vecs...)
	}

	job.vectors = vectors
	return nil
}

func (i *DocumentIngestor) upsert(ctx context.Context, job *docJob) error {
	records := make([]models.VectorRecord, len(job.chunks))
	for k, c := range job.chunks {
		records[k] = models.VectorRecord{
			ID:     vectorID(job.doc.Hash, c.Index),
			Values: job.vectors[k],
			Metadata: models.VectorMetadata{
				Hash:       job.doc.Hash,
				Title:      job.doc.Title,
				Course:     job.doc.CourseName,
				SubjectID:  job.doc.SubjectID,
				ChunkText:  c.Text,
				ChunkIndex: c.Index,
				TokenCount: c.TokenCount,
			},
		}
	}

	n, err := i.Vectors.Upsert(ctx, job.doc.SubjectID, records)
	job.upserted = n
	return err
}

func (i *DocumentIngestor) mark(ctx context.Context, job *docJob) error {
	return i.Store.MarkProcessed(ctx, &models.ProcessedDocument{
		Hash:        job.doc.Hash,
		Title:       job.doc.Title,
		CourseID:    job.doc.CourseID,
		CourseName:  job.doc.CourseName,
		SubjectID:   job.doc.SubjectID,
		AssetURL:    job.doc.AssetURL,
		VectorCount: job.upserted,
		ProcessedAt: i.now(),
	})
}

// dropVectors removes whatever a failed document left in the index. Best effort.
func (i *DocumentIngestor) dropVectors(job *docJob) {
	if job.upserted == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := i.Vectors.DeleteDocument(ctx, job.doc.SubjectID, job.doc.Hash); err != nil {
		i.logger.Warn("orphan cleanup failed", "hash", job.doc.Hash, "err", err)
	}
}

// archive stores the raw asset; failure never fails the document.
func (i *DocumentIngestor) archive(ctx context.Context, key string, data []byte, contentType string) {
	if i.Archive == nil {
		return
	}
	if _, err := i.Archive.UploadFile(ctx, key, data, contentType); err != nil {
		i.logger.Warn("archive upload failed", "key", key, "err", err)
	}
}

func vectorID(hash string, index int) string {
	return hash + "_" + strconv.Itoa(index)
}

func archiveKey(doc models.ExternalDocument, ext string) string {
	return fmt.Sprintf("lectures/%s/%s%s", doc.SubjectID, doc.Hash, ext)
}

// assetExt takes the extension from the asset URL path; LMS whiteboards default to .pdf.
func assetExt(assetURL string) string {
	if u, err := url.Parse(assetURL); err == nil {
		if ext := strings.ToLower(path.Ext(u.Path)); ext != "" {
			return ext
		}
	}
	return ".pdf"
}

func uploadHash(filename string) string {
	sum := md5.Sum([]byte(filename))
	return hex.EncodeToString(sum[:])
}
