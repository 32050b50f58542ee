package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ericksa/contractassist/internal/audit"
	"github.com/ericksa/contractassist/internal/extract"
	"github.com/ericksa/contractassist/internal/extract/extracttest"
	"github.com/ericksa/contractassist/internal/llm"
	"github.com/ericksa/contractassist/internal/repair"
	"github.com/ericksa/contractassist/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func twoPagePDF() []byte {
	return extracttest.PDF(
		[]string{
			"PAYMENT TERMS",
			"The Client shall pay all invoices within thirty days.",
		},
		[]string{
			"Compensation",
			"The Consultant is paid a fixed monthly fee of five thousand dollars.",
		},
	)
}

type fakeModel struct {
	reply  string
	err    error
	calls  atomic.Int32
	prompt string
}

func (f *fakeModel) Send(ctx context.Context, prompt string) (string, error) {
	f.calls.Add(1)
	f.prompt = prompt
	return f.reply, f.err
}

func newTestWorker(t *testing.T, model llm.Client) (*ContractWorker, *audit.Auditor) {
	t.Helper()
	store, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	a, err := audit.New(fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_")), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return NewContractWorker(model, store, WithAuditor(a), WithLogger(zaptest.NewLogger(t))), a
}

func TestContractWorker_IdentifyClauses(t *testing.T) {
	model := &fakeModel{reply: "```json\n[{\"title\": \"Compensation\", \"text\": \"The Consultant is paid a fixed monthly fee of five thousand dollars.\"},]\n```"}
	w, a := newTestWorker(t, model)

	clauses, analysis, err := w.IdentifyClauses(context.Background(), "/identify_upload/", "consulting.pdf", twoPagePDF())
	require.NoError(t, err)

	assert.Equal(t, []repair.Clause{{
		Title: "Compensation",
		Text:  "The Consultant is paid a fixed monthly fee of five thousand dollars.",
	}}, clauses)
	assert.Equal(t, extract.KindPDF, analysis.Kind)
	assert.Contains(t, model.prompt, "Compensation\nThe Consultant is paid a fixed monthly fee")
	assert.Contains(t, model.prompt, "PAYMENT TERMS")

	entries, err := a.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "/identify_upload/", entries[0].Route)
	assert.Equal(t, "pdf", entries[0].Kind)
	assert.Equal(t, 1, entries[0].Records)
}

func TestContractWorker_SuggestNegotiationDropsInvalid(t *testing.T) {
	model := &fakeModel{reply: `[{"original_text": "within thirty days", "suggestion": "Ask for sixty days."}, {"suggestion": 4}]`}
	w, a := newTestWorker(t, model)

	suggestions, analysis, err := w.SuggestNegotiation(context.Background(), "/suggestion/", "consulting.pdf", twoPagePDF())
	require.NoError(t, err)
	assert.Equal(t, []repair.Suggestion{{OriginalText: "within thirty days", Suggestion: "Ask for sixty days."}}, suggestions)
	assert.Equal(t, 1, analysis.Result.Dropped)

	entries, err := a.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].Dropped)
}

func TestContractWorker_Errors(t *testing.T) {
	tests := []struct {
		name     string
		model    *fakeModel
		filename string
		data     []byte
		want     error
	}{
		{"unsupported", &fakeModel{}, "contract.txt", []byte("hello"), extract.ErrUnsupportedFormat},
		{"corrupt", &fakeModel{}, "contract.pdf", []byte("not a pdf at all"), extract.ErrCorruptDocument},
		{"model down", &fakeModel{err: fmt.Errorf("%w: refused", llm.ErrModelUnavailable)}, "contract.pdf", twoPagePDF(), llm.ErrModelUnavailable},
		{"quota", &fakeModel{err: fmt.Errorf("%w: 429", llm.ErrModelQuotaExceeded)}, "contract.pdf", twoPagePDF(), llm.ErrModelQuotaExceeded},
		{"prose reply", &fakeModel{reply: "I could not find any clauses."}, "contract.pdf", twoPagePDF(), repair.ErrUnrecoverableFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, a := newTestWorker(t, tt.model)
			clauses, _, err := w.IdentifyClauses(context.Background(), "/identify_upload/", tt.filename, tt.data)
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, clauses)

			entries, err := a.Recent(context.Background(), 1)
			require.NoError(t, err)
			require.Len(t, entries, 1)
			assert.NotEmpty(t, entries[0].Error)
		})
	}
}

func TestContractWorker_EmptyDocumentSkipsModel(t *testing.T) {
	model := &fakeModel{reply: `[{"title":"Invented","text":"x"}]`}
	w, _ := newTestWorker(t, model)

	clauses, _, err := w.IdentifyClauses(context.Background(), "test", "empty.pdf", nil)
	require.NoError(t, err)
	assert.NotNil(t, clauses)
	assert.Empty(t, clauses)
	assert.Equal(t, int32(0), model.calls.Load())
}

func TestContractWorker_Save(t *testing.T) {
	w, _ := newTestWorker(t, &fakeModel{})
	ctx := context.Background()

	up, err := w.Save(ctx, "../Lease Agreement.DOCX", []byte("data"))
	require.NoError(t, err)
	assert.Equal(t, "Lease Agreement.DOCX", up.Name)
	assert.Equal(t, extract.KindDOCX, up.Kind)

	_, err = w.Save(ctx, "notes.txt", []byte("data"))
	assert.ErrorIs(t, err, extract.ErrUnsupportedFormat)

	objects, err := w.List(ctx)
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, "Lease Agreement.DOCX", objects[0].Name)
}

func TestContractWorker_Tools(t *testing.T) {
	model := &fakeModel{reply: `[{"title":"Compensation","text":"fixed fee"}]`}
	w, _ := newTestWorker(t, model)
	ctx := context.Background()

	_, err := w.Save(ctx, "consulting.pdf", twoPagePDF())
	require.NoError(t, err)

	names := []string{}
	for _, tool := range w.GetTools() {
		names = append(names, tool.Name)
	}
	assert.Equal(t, []string{"identify_clauses", "suggest_negotiation", "extract_text", "list"}, names)

	out, err := w.Execute(ctx, "contract_identify_clauses", json.RawMessage(`{"filename":"consulting.pdf"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `[{"title":"Compensation","text":"fixed fee"}]`, string(out))

	out, err = w.Execute(ctx, "extract_text", json.RawMessage(`{"filename":"consulting.pdf"}`))
	require.NoError(t, err)
	var extracted struct {
		Kind     string            `json:"kind"`
		Sections []extract.Section `json:"sections"`
	}
	require.NoError(t, json.Unmarshal(out, &extracted))
	assert.Equal(t, "pdf", extracted.Kind)
	require.Len(t, extracted.Sections, 2)
	assert.Equal(t, "Compensation", extracted.Sections[1].Header)

	out, err = w.Execute(ctx, "contract_list", nil)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"count":1`)

	_, err = w.Execute(ctx, "identify_clauses", json.RawMessage(`{"filename":"missing.pdf"}`))
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = w.Execute(ctx, "identify_clauses", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, ErrInvalidToolInput)

	_, err = w.Execute(ctx, "extract_text", json.RawMessage(`{"filename":`))
	assert.ErrorIs(t, err, ErrInvalidToolInput)

	_, err = w.Execute(ctx, "contract_delete", nil)
	assert.True(t, errors.Is(err, ErrUnknownTool))
}
