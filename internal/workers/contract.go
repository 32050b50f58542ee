package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/ericksa/contractassist/internal/audit"
	"github.com/ericksa/contractassist/internal/extract"
	"github.com/ericksa/contractassist/internal/llm"
	"github.com/ericksa/contractassist/internal/prompt"
	"github.com/ericksa/contractassist/internal/repair"
	"github.com/ericksa/contractassist/internal/storage"
	"go.uber.org/zap"
)

// ContractWorker runs contract analyses: extract the text, prompt the model,
// repair its reply. It also owns the upload store.
type ContractWorker struct {
	model  llm.Client
	store  storage.Store
	audit  *audit.Auditor
	logger *zap.Logger
}

type ContractOption func(*ContractWorker)

func WithAuditor(a *audit.Auditor) ContractOption {
	return func(w *ContractWorker) { w.audit = a }
}

func WithLogger(l *zap.Logger) ContractOption {
	return func(w *ContractWorker) { w.logger = l }
}

func NewContractWorker(model llm.Client, store storage.Store, opts ...ContractOption) *ContractWorker {
	w := &ContractWorker{
		model:  model,
		store:  store,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Analysis is the outcome of one analysis run.
type Analysis struct {
	Kind extract.Kind
	// Raw is the unmodified model reply; empty when the model was not called.
	Raw    string
	Result *repair.Result
}

// Upload describes a stored contract.
type Upload struct {
	Name string       `json:"name"`
	Kind extract.Kind `json:"kind"`
}

// Save stores data under the cleaned base name of filename. Only PDF and
// DOCX files are accepted.
func (w *ContractWorker) Save(ctx context.Context, filename string, data []byte) (*Upload, error) {
	kind, err := extract.KindFromFilename(filename)
	if err != nil {
		return nil, err
	}
	name, err := storage.CleanName(filename)
	if err != nil {
		return nil, err
	}
	if err := w.store.Save(ctx, name, data); err != nil {
		return nil, fmt.Errorf("failed to save upload: %w", err)
	}
	w.logger.Debug("upload stored", zap.String("name", name), zap.Int("bytes", len(data)))
	return &Upload{Name: name, Kind: kind}, nil
}

func (w *ContractWorker) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	return w.store.Open(ctx, name)
}

func (w *ContractWorker) List(ctx context.Context) ([]storage.Object, error) {
	return w.store.List(ctx)
}

// ExtractText returns the cleaned document for filename's bytes.
func (w *ContractWorker) ExtractText(filename string, data []byte) (*extract.Document, extract.Kind, error) {
	kind, err := extract.KindFromFilename(filename)
	if err != nil {
		return nil, "", err
	}
	doc, err := extract.Extract(data, kind)
	if err != nil {
		return nil, kind, err
	}
	return doc, kind, nil
}

// Analyze runs task over the document and audits the outcome under source,
// which names the route or tool that asked for it.
func (w *ContractWorker) Analyze(ctx context.Context, source string, task prompt.Task, filename string, data []byte) (*Analysis, error) {
	start := time.Now()
	a, err := w.analyze(ctx, task, filename, data)

	entry := audit.Entry{
		Route:     source,
		Filename:  filename,
		ElapsedMS: time.Since(start).Milliseconds(),
	}
	if a != nil {
		entry.Kind = string(a.Kind)
		if a.Result != nil {
			entry.Records = len(a.Result.Records)
			entry.Dropped = a.Result.Dropped
		}
	}
	if err != nil {
		entry.Error = err.Error()
		w.logger.Warn("analysis failed",
			zap.String("source", source),
			zap.String("filename", filename),
			zap.Stringer("task", task),
			zap.Error(err),
		)
	}
	w.audit.Log(ctx, entry)
	return a, err
}

func (w *ContractWorker) analyze(ctx context.Context, task prompt.Task, filename string, data []byte) (*Analysis, error) {
	doc, kind, err := w.ExtractText(filename, data)
	a := &Analysis{Kind: kind}
	if err != nil {
		return a, err
	}
	if doc.Empty() {
		// Nothing to analyze; the model would only invent content.
		a.Result = &repair.Result{Records: []json.RawMessage{}}
		return a, nil
	}

	reply, err := w.model.Send(ctx, prompt.Build(task, doc.Text()))
	if err != nil {
		return a, err
	}
	a.Raw = reply

	res, err := repair.Repair(reply, task.Shape())
	if err != nil {
		return a, err
	}
	a.Result = res
	if res.Dropped > 0 {
		w.logger.Warn("dropped invalid records",
			zap.String("filename", filename),
			zap.Stringer("task", task),
			zap.Int("kept", len(res.Records)),
			zap.Int("dropped", res.Dropped),
		)
	}
	if len(res.Applied) > 0 {
		w.logger.Debug("reply repaired", zap.Strings("fixups", res.Applied))
	}
	return a, nil
}

func (w *ContractWorker) IdentifyClauses(ctx context.Context, source, filename string, data []byte) ([]repair.Clause, *Analysis, error) {
	a, err := w.Analyze(ctx, source, prompt.TaskClauseIdentification, filename, data)
	if err != nil {
		return nil, a, err
	}
	clauses, err := repair.Decode[repair.Clause](a.Result.Records)
	return clauses, a, err
}

func (w *ContractWorker) SuggestNegotiation(ctx context.Context, source, filename string, data []byte) ([]repair.Suggestion, *Analysis, error) {
	a, err := w.Analyze(ctx, source, prompt.TaskNegotiationSuggestion, filename, data)
	if err != nil {
		return nil, a, err
	}
	suggestions, err := repair.Decode[repair.Suggestion](a.Result.Records)
	return suggestions, a, err
}

func (w *ContractWorker) GetTools() []ToolDef {
	return []ToolDef{
		{Name: "identify_clauses", Description: "Identify the clauses of a stored contract as a list of {title, text} records"},
		{Name: "suggest_negotiation", Description: "Suggest negotiation points for a stored contract as a list of {original_text, suggestion} records"},
		{Name: "extract_text", Description: "Extract the cleaned, sectioned text of a stored contract"},
		{Name: "list", Description: "List stored contracts"},
	}
}

func (w *ContractWorker) Execute(ctx context.Context, name string, input json.RawMessage) ([]byte, error) {
	switch name {
	case "contract_identify_clauses", "identify_clauses":
		return w.identifyTool(ctx, input)
	case "contract_suggest_negotiation", "suggest_negotiation":
		return w.suggestTool(ctx, input)
	case "contract_extract_text", "extract_text":
		return w.extractTool(ctx, input)
	case "contract_list", "list":
		return w.listTool(ctx)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
}

func (w *ContractWorker) load(ctx context.Context, input json.RawMessage) (string, []byte, error) {
	req, err := decodeFileRequest(input)
	if err != nil {
		return "", nil, err
	}
	rc, err := w.store.Open(ctx, req.Filename)
	if err != nil {
		return "", nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read %s: %w", req.Filename, err)
	}
	return req.Filename, data, nil
}

func (w *ContractWorker) identifyTool(ctx context.Context, input json.RawMessage) ([]byte, error) {
	filename, data, err := w.load(ctx, input)
	if err != nil {
		return nil, err
	}
	clauses, _, err := w.IdentifyClauses(ctx, "contract_identify_clauses", filename, data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(clauses)
}

func (w *ContractWorker) suggestTool(ctx context.Context, input json.RawMessage) ([]byte, error) {
	filename, data, err := w.load(ctx, input)
	if err != nil {
		return nil, err
	}
	suggestions, _, err := w.SuggestNegotiation(ctx, "contract_suggest_negotiation", filename, data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(suggestions)
}

func (w *ContractWorker) extractTool(ctx context.Context, input json.RawMessage) ([]byte, error) {
	filename, data, err := w.load(ctx, input)
	if err != nil {
		return nil, err
	}
	doc, kind, err := w.ExtractText(filename, data)
	if err != nil {
		return nil, err
	}
	sections := doc.Sections
	if sections == nil {
		sections = []extract.Section{}
	}
	return json.Marshal(map[string]interface{}{
		"filename": filename,
		"kind":     kind,
		"sections": sections,
		"text":     doc.Text(),
	})
}

func (w *ContractWorker) listTool(ctx context.Context) ([]byte, error) {
	objects, err := w.store.List(ctx)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]interface{}{
		"contracts": objects,
		"count":     len(objects),
	})
}
