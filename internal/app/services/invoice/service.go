package invoice

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/seanotes/seanotes/internal/app/domain/invoice"
	"github.com/seanotes/seanotes/internal/app/services/billing"
	"github.com/seanotes/seanotes/internal/app/services/email"
	"github.com/seanotes/seanotes/internal/app/services/objectstore"
	"github.com/seanotes/seanotes/internal/app/storage"
	"github.com/seanotes/seanotes/internal/errors"
	"github.com/seanotes/seanotes/internal/logging"
)

// DownloadExpiry is how long a presigned invoice link stays valid.
const DownloadExpiry = 15 * time.Minute

const numberAttempts = 5

// IssueResult is returned after an invoice has been stored.
type IssueResult struct {
	Success       bool    `json:"success"`
	InvoiceNumber string  `json:"invoiceNumber"`
	PlanName      string  `json:"planName"`
	Amount        float64 `json:"amount"`
	Emailed       bool    `json:"emailed"`
	Message       string  `json:"message"`
}

// Service issues invoices for the current subscription.
type Service struct {
	gen      *Generator
	users    storage.UserStore
	invoices storage.InvoiceStore
	billing  *billing.Service
	objects  objectstore.Storage
	mailer   email.Sender
	log      *logging.Logger
	now      func() time.Time
}

// New constructs an invoice service. objects may be nil when storage is not configured.
func New(gen *Generator, users storage.UserStore, invoices storage.InvoiceStore, bill *billing.Service,
	objects objectstore.Storage, mailer email.Sender, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("invoice")
	}
	if gen == nil {
		gen = NewGenerator(nil, log)
	}
	if mailer == nil {
		mailer = email.NewDisabledSender(log)
	}
	return &Service{
		gen:      gen,
		users:    users,
		invoices: invoices,
		billing:  bill,
		objects:  objects,
		mailer:   mailer,
		log:      log,
		now:      time.Now,
	}
}

// ObjectKey is where an invoice document is stored.
func ObjectKey(userID, number string) string {
	return fmt.Sprintf("invoices/%s/%s.html", userID, number)
}

// Issue renders an invoice for the user's plan, stores it and e-mails it when enabled.
func (s *Service) Issue(ctx context.Context, userID string) (IssueResult, error) {
	if s.objects == nil {
		return IssueResult{}, errors.Unavailable("Storage service not configured")
	}

	u, err := s.users.GetUser(ctx, userID)
	if stderrors.Is(err, storage.ErrNotFound) {
		return IssueResult{}, errors.NotFound("User")
	}
	if err != nil {
		return IssueResult{}, errors.Internal("Failed to load user", err)
	}

	sub, err := s.billing.CurrentSubscription(ctx, userID)
	if errors.Is(err, errors.CodeNotFound) {
		sub, err = s.billing.EnsureFreeSubscription(ctx, u)
	}
	if err != nil {
		return IssueResult{}, err
	}
	plan := s.billing.PlanDetails(sub.Plan)

	now := s.now().UTC()
	data := Data{
		CustomerName:    u.Name,
		CustomerEmail:   u.Email,
		PlanName:        plan.Name,
		PlanDescription: plan.Description,
		Amount:          plan.Amount,
		Currency:        plan.Currency,
		Interval:        plan.Interval,
		Features:        plan.Features,
		InvoiceDate:     now,
		SubscriptionID:  sub.ID,
	}

	record, err := s.reserveNumber(ctx, userID, &data)
	if err != nil {
		return IssueResult{}, err
	}
	doc := s.gen.Generate(ctx, data)

	if err := s.objects.Upload(ctx, record.ObjectKey, strings.NewReader(doc.HTML), int64(len(doc.HTML)), "text/html; charset=utf-8"); err != nil {
		return IssueResult{}, errors.Internal("Failed to store invoice", err)
	}

	result := IssueResult{
		Success:       true,
		InvoiceNumber: record.Number,
		PlanName:      plan.Name,
		Amount:        plan.Amount,
		Message:       "Invoice generated and stored successfully. Use the download button to access it.",
	}

	if s.mailer.Enabled() {
		msg, err := email.InvoiceEmail(u.Email, u.Name, record.Number, doc.Subject, doc.HTML, doc.Text)
		if err == nil {
			err = s.mailer.Send(ctx, msg)
		}
		if err != nil {
			s.log.WithError(err).WithField("invoice", record.Number).Warn("Failed to e-mail invoice")
		} else {
			result.Emailed = true
		}
	}

	s.log.WithFields(map[string]interface{}{
		"user_id":  userID,
		"invoice":  record.Number,
		"fallback": doc.UsedFallback,
	}).Info("Invoice issued")
	return result, nil
}

// reserveNumber records the invoice under a fresh number, retrying on collisions.
func (s *Service) reserveNumber(ctx context.Context, userID string, data *Data) (invoice.Invoice, error) {
	for attempt := 0; attempt < numberAttempts; attempt++ {
		number := GenerateInvoiceNumber(data.InvoiceDate, -1)
		rec, err := s.invoices.CreateInvoice(ctx, invoice.Invoice{
			Number:    number,
			UserID:    userID,
			PlanName:  data.PlanName,
			Amount:    data.Amount,
			ObjectKey: ObjectKey(userID, number),
			CreatedAt: data.InvoiceDate,
		})
		if stderrors.Is(err, storage.ErrConflict) {
			continue
		}
		if err != nil {
			return invoice.Invoice{}, errors.Internal("Failed to record invoice", err)
		}
		data.InvoiceNumber = number
		return rec, nil
	}
	return invoice.Invoice{}, errors.Conflict("Could not allocate an invoice number")
}

// List returns the user's invoices, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]invoice.Invoice, error) {
	invs, err := s.invoices.ListInvoices(ctx, userID)
	if err != nil {
		return nil, errors.Internal("Failed to list invoices", err)
	}
	return invs, nil
}

// DownloadURL presigns the stored document for one of the user's invoices.
func (s *Service) DownloadURL(ctx context.Context, userID, number string) (string, error) {
	if s.objects == nil {
		return "", errors.Unavailable("Storage service not configured")
	}
	inv, err := s.invoices.GetInvoice(ctx, userID, number)
	if stderrors.Is(err, storage.ErrNotFound) {
		return "", errors.NotFound("Invoice")
	}
	if err != nil {
		return "", errors.Internal("Failed to load invoice", err)
	}
	url, err := s.objects.SignedURL(ctx, inv.ObjectKey, DownloadExpiry)
	if err != nil {
		return "", errors.Internal("Failed to sign invoice URL", err)
	}
	return url, nil
}

// WriteFiles saves doc as <dir>/<number>.html and .txt and returns both paths.
func WriteFiles(doc Document, dir, number string) (string, string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("create output dir: %w", err)
	}
	htmlPath := filepath.Join(dir, number+".html")
	txtPath := filepath.Join(dir, number+".txt")
	if err := os.WriteFile(htmlPath, []byte(doc.HTML), 0o644); err != nil {
		return "", "", fmt.Errorf("write html: %w", err)
	}
	if err := os.WriteFile(txtPath, []byte(doc.Text), 0o644); err != nil {
		return "", "", fmt.Errorf("write text: %w", err)
	}
	return htmlPath, txtPath, nil
}
