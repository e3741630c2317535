package invoice

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seanotes/seanotes/internal/app/domain/user"
	"github.com/seanotes/seanotes/internal/app/services/ai"
	"github.com/seanotes/seanotes/internal/app/services/billing"
	"github.com/seanotes/seanotes/internal/app/services/email"
	"github.com/seanotes/seanotes/internal/app/services/objectstore"
	"github.com/seanotes/seanotes/internal/app/storage/memory"
	"github.com/seanotes/seanotes/internal/config"
	svcerrors "github.com/seanotes/seanotes/internal/errors"
	"github.com/seanotes/seanotes/internal/logging"
)

var numberPattern = regexp.MustCompile(`^INV-\d{8}-\d{4}$`)

func sampleData() Data {
	return Data{
		InvoiceNumber:   "INV-20240501-0042",
		CustomerName:    "Ada <Lovelace>",
		CustomerEmail:   "ada@example.com",
		PlanName:        "Pro",
		PlanDescription: "AI assistance",
		Amount:          12,
		Currency:        "usd",
		Interval:        "month",
		Features:        []string{"Unlimited notes", "Summaries"},
		InvoiceDate:     time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestGenerateInvoiceNumber(t *testing.T) {
	day := time.Date(2024, 5, 1, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, "INV-20240501-0007", GenerateInvoiceNumber(day, 7))
	assert.Equal(t, "INV-20240501-0000", GenerateInvoiceNumber(day, 10000))
	for i := 0; i < 20; i++ {
		assert.Regexp(t, numberPattern, GenerateInvoiceNumber(day, -1))
	}
}

func TestParseDocument(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		ok    bool
		html  string
	}{
		{"plain", `{"html":"<p>x</p>","text":"x","subject":"s"}`, true, "<p>x</p>"},
		{"fenced", "```json\n{\"html\":\"<h1>Inv</h1>\",\"subject\":\"s\"}\n```", true, "<h1>Inv</h1>"},
		{"prose", "Here you go: {\"html\": \"<div>ok</div>\"} hope it helps", true, "<div>ok</div>"},
		{"no html", `{"text":"x"}`, false, ""},
		{"not markup", `{"html":"just text"}`, false, ""},
		{"broken", `{"html": "<p>`, false, ""},
		{"empty", ``, false, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			doc, ok := ParseDocument(tc.reply)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.html, doc.HTML)
		})
	}
}

func TestFallbackEscapesAndLists(t *testing.T) {
	doc := Fallback(sampleData())
	assert.True(t, doc.UsedFallback)
	assert.Contains(t, doc.HTML, "Ada &lt;Lovelace&gt;")
	assert.Contains(t, doc.HTML, "<li>Summaries</li>")
	assert.Contains(t, doc.HTML, "$12.00")
	assert.Contains(t, doc.Text, "- Unlimited notes")
	assert.Equal(t, "Invoice #INV-20240501-0042 - Pro", doc.Subject)
}

func TestGeneratorUsesModelReply(t *testing.T) {
	provider := ai.NewLocalProvider()
	provider.Reply = func(msgs []ai.Message, opts ai.CompletionOptions) (string, error) {
		assert.Equal(t, float32(0.2), opts.Temperature)
		assert.Contains(t, msgs[1].Content, "Invoice #: INV-20240501-0042")
		return `{"html":"<html>model</html>","subject":"Your invoice"}`, nil
	}
	doc := NewGenerator(provider, logging.NewDiscard()).Generate(context.Background(), sampleData())
	assert.False(t, doc.UsedFallback)
	assert.Equal(t, "<html>model</html>", doc.HTML)
	assert.Equal(t, "Your invoice", doc.Subject)
	assert.Contains(t, doc.Text, "INVOICE #INV-20240501-0042")
}

func TestGeneratorFallsBackOnError(t *testing.T) {
	provider := ai.NewLocalProvider()
	provider.Reply = func([]ai.Message, ai.CompletionOptions) (string, error) {
		return "", errors.New("inference down")
	}
	doc := NewGenerator(provider, logging.NewDiscard()).Generate(context.Background(), sampleData())
	assert.True(t, doc.UsedFallback)
}

type fixture struct {
	svc     *Service
	store   *memory.Store
	objects *objectstore.Memory
	mailer  *email.MemorySender
	user    user.User
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	log := logging.NewDiscard()
	store := memory.New()
	u, err := store.CreateUser(context.Background(), user.User{Name: "Ada", Email: "ada@example.com"})
	require.NoError(t, err)

	bill := billing.New(billing.NewLocalProvider(), store, config.DefaultPlans(), config.BillingConfig{}, log)
	objects := objectstore.NewMemory()
	mailer := email.NewMemorySender()
	svc := New(NewGenerator(nil, log), store, store, bill, objects, mailer, log)
	svc.now = func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC) }
	return fixture{svc: svc, store: store, objects: objects, mailer: mailer, user: u}
}

func TestIssueStoresAndEmails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Issue(ctx, f.user.ID)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.Emailed)
	assert.Equal(t, "Free", res.PlanName)
	assert.Regexp(t, numberPattern, res.InvoiceNumber)
	assert.True(t, strings.HasPrefix(res.InvoiceNumber, "INV-20240501-"))

	body, contentType, err := f.objects.Get(ObjectKey(f.user.ID, res.InvoiceNumber))
	require.NoError(t, err)
	assert.Contains(t, string(body), res.InvoiceNumber)
	assert.Equal(t, "text/html; charset=utf-8", contentType)

	msg, ok := f.mailer.Last()
	require.True(t, ok)
	assert.Equal(t, "ada@example.com", msg.To)

	url, err := f.svc.DownloadURL(ctx, f.user.ID, res.InvoiceNumber)
	require.NoError(t, err)
	assert.Contains(t, url, res.InvoiceNumber)

	invs, err := f.svc.List(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Len(t, invs, 1)
}

func TestIssueErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Issue(ctx, "missing")
	assert.True(t, svcerrors.Is(err, svcerrors.CodeNotFound))

	_, err = f.svc.DownloadURL(ctx, f.user.ID, "INV-19990101-0000")
	assert.True(t, svcerrors.Is(err, svcerrors.CodeNotFound))

	f.svc.objects = nil
	_, err = f.svc.Issue(ctx, f.user.ID)
	assert.True(t, svcerrors.Is(err, svcerrors.CodeServiceUnavailable))
}

func TestIssueSurvivesEmailFailure(t *testing.T) {
	f := newFixture(t)
	f.mailer.Err = errors.New("smtp down")
	res, err := f.svc.Issue(context.Background(), f.user.ID)
	require.NoError(t, err)
	assert.False(t, res.Emailed)
}

func TestWriteFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	doc := Fallback(sampleData())
	htmlPath, txtPath, err := WriteFiles(doc, dir, "INV-20240501-0042")
	require.NoError(t, err)

	data, err := os.ReadFile(htmlPath)
	require.NoError(t, err)
	assert.Equal(t, doc.HTML, string(data))
	data, err = os.ReadFile(txtPath)
	require.NoError(t, err)
	assert.Equal(t, doc.Text, string(data))
}
