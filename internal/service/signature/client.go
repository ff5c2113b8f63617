package signature

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	models "carelane/internal/domain/models/contract"
	contractSvc "carelane/internal/domain/services/contract"
	"carelane/internal/service/render"
)

// Config carries the provider connection settings.
type Config struct {
	BaseURL        string // e.g. https://demo.docusign.net/restapi
	AuthServer     string // e.g. account-d.docusign.com
	ClientID       string
	UserID         string
	AccountID      string
	PrivateKeyFile string
	ReturnURL      string
}

// Client implements SignatureProvider against a DocuSign-compatible
// eSignature REST API using JWT-grant authentication.
type Client struct {
	http      *resty.Client
	tokens    *tokenSource
	accountID string
	returnURL string
	blobs     render.BlobStore
	logger    *slog.Logger
}

// NewClient creates a new signature provider client. The blob store
// supplies the rendered PDF bytes when an envelope is created.
func NewClient(cfg Config, blobs render.BlobStore, logger *slog.Logger) (*Client, error) {
	if cfg.AccountID == "" {
		return nil, fmt.Errorf("signature account id is required")
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(30 * time.Second)

	tokens, err := newTokenSource(resty.New().SetTimeout(30*time.Second), cfg.AuthServer, cfg.ClientID, cfg.UserID, cfg.PrivateKeyFile)
	if err != nil {
		return nil, err
	}

	return &Client{
		http:      httpClient,
		tokens:    tokens,
		accountID: cfg.AccountID,
		returnURL: cfg.ReturnURL,
		blobs:     blobs,
		logger:    logger,
	}, nil
}

type envelopeDocument struct {
	DocumentBase64 string `json:"documentBase64"`
	Name           string `json:"name"`
	FileExtension  string `json:"fileExtension"`
	DocumentID     string `json:"documentId"`
}

type envelopeSigner struct {
	Email        string `json:"email"`
	Name         string `json:"name"`
	RecipientID  string `json:"recipientId"`
	RoutingOrder string `json:"routingOrder"`
	ClientUserID string `json:"clientUserId"`
}

type envelopeDefinition struct {
	EmailSubject string             `json:"emailSubject"`
	Documents    []envelopeDocument `json:"documents"`
	Recipients   struct {
		Signers []envelopeSigner `json:"signers"`
	} `json:"recipients"`
	Status string `json:"status"`
}

type envelopeCreateResponse struct {
	EnvelopeID string `json:"envelopeId"`
}

type recipientViewRequest struct {
	AuthenticationMethod string `json:"authenticationMethod"`
	ClientUserID         string `json:"clientUserId"`
	ReturnURL            string `json:"returnUrl"`
	UserName             string `json:"userName"`
	Email                string `json:"email"`
}

type recipientViewResponse struct {
	URL string `json:"url"`
}

type envelopeGetResponse struct {
	Status string `json:"status"`
}

// CreateEnvelope submits the rendered PDF for signature with embedded
// signing recipients and returns the provider's envelope id.
func (c *Client) CreateEnvelope(ctx context.Context, doc *models.Document, signers []models.Signer) (string, error) {
	if doc.RenderedBlobRef == "" {
		return "", fmt.Errorf("document %s has no rendered artifact", doc.ID)
	}
	if len(signers) == 0 {
		return "", fmt.Errorf("document %s has no signers", doc.ID)
	}

	pdfBytes, err := c.blobs.Get(doc.RenderedBlobRef)
	if err != nil {
		return "", fmt.Errorf("load rendered artifact: %w", err)
	}

	def := envelopeDefinition{
		EmailSubject: fmt.Sprintf("Please sign: %s contract %s", doc.Role, doc.ID),
		Documents: []envelopeDocument{{
			DocumentBase64: base64.StdEncoding.EncodeToString(pdfBytes),
			Name:           fmt.Sprintf("%s-contract.pdf", doc.Role),
			FileExtension:  "pdf",
			DocumentID:     "1",
		}},
		Status: "sent",
	}
	for i, s := range signers {
		def.Recipients.Signers = append(def.Recipients.Signers, envelopeSigner{
			Email:        s.Email,
			Name:         s.Name,
			RecipientID:  strconv.Itoa(i + 1),
			RoutingOrder: strconv.Itoa(i + 1),
			ClientUserID: s.ClientUserID,
		})
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return "", err
	}

	var out envelopeCreateResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(def).
		SetResult(&out).
		Post(fmt.Sprintf("/v2.1/accounts/%s/envelopes", c.accountID))
	if err != nil {
		return "", fmt.Errorf("create envelope: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("create envelope: %s: %s", resp.Status(), resp.String())
	}
	if out.EnvelopeID == "" {
		return "", fmt.Errorf("create envelope: response missing envelopeId")
	}

	c.logger.Info("envelope created", "document_id", doc.ID, "envelope_id", out.EnvelopeID)
	return out.EnvelopeID, nil
}

// SigningURL issues a single-use embedded signing URL for one signer.
func (c *Client) SigningURL(ctx context.Context, envelopeID string, signer models.Signer) (string, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return "", err
	}

	var out recipientViewResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(recipientViewRequest{
			AuthenticationMethod: "none",
			ClientUserID:         signer.ClientUserID,
			ReturnURL:            c.returnURL,
			UserName:             signer.Name,
			Email:                signer.Email,
		}).
		SetResult(&out).
		Post(fmt.Sprintf("/v2.1/accounts/%s/envelopes/%s/views/recipient", c.accountID, envelopeID))
	if err != nil {
		return "", fmt.Errorf("create recipient view: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("create recipient view: %s: %s", resp.Status(), resp.String())
	}
	if out.URL == "" {
		return "", fmt.Errorf("create recipient view: response missing url")
	}
	return out.URL, nil
}

// EnvelopeStatus fetches the envelope's current status.
func (c *Client) EnvelopeStatus(ctx context.Context, envelopeID string) (contractSvc.EnvelopeStatus, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return "", err
	}

	var out envelopeGetResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetResult(&out).
		Get(fmt.Sprintf("/v2.1/accounts/%s/envelopes/%s", c.accountID, envelopeID))
	if err != nil {
		return "", fmt.Errorf("get envelope: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("get envelope: %s: %s", resp.Status(), resp.String())
	}

	return ParseEnvelopeStatus(out.Status)
}

// ParseEnvelopeStatus normalizes a provider status string. The provider
// reports a fully signed envelope as "completed".
func ParseEnvelopeStatus(raw string) (contractSvc.EnvelopeStatus, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "created":
		return contractSvc.EnvelopeCreated, nil
	case "sent":
		return contractSvc.EnvelopeSent, nil
	case "delivered":
		return contractSvc.EnvelopeDelivered, nil
	case "signed", "completed":
		return contractSvc.EnvelopeSigned, nil
	case "declined":
		return contractSvc.EnvelopeDeclined, nil
	case "voided":
		return contractSvc.EnvelopeVoided, nil
	}
	return "", fmt.Errorf("unknown envelope status %q", raw)
}
