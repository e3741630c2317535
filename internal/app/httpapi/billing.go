package httpapi

import (
	"net/http"
)

func (h *handler) subscription(w http.ResponseWriter, r *http.Request) {
	sub, err := h.app.Billing.CurrentSubscription(r.Context(), userID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (h *handler) plans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.app.Billing.Plans(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"plans": plans})
}

func (h *handler) generateInvoice(w http.ResponseWriter, r *http.Request) {
	result, err := h.app.Invoices.Issue(r.Context(), userID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	invoices, err := h.app.Invoices.List(r.Context(), userID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"invoices": invoices})
}

func (h *handler) invoiceURL(w http.ResponseWriter, r *http.Request) {
	url, err := h.app.Invoices.DownloadURL(r.Context(), userID(r), pathVar(r, "number"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}
