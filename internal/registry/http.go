package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 64 << 10
)

type HTTPConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// HTTPClient queries a Decolecta-style registry: GET {base}/reniec/dni and
// {base}/sunat/ruc with the document in the numero parameter.
type HTTPClient struct {
	base   string
	token  string
	client *http.Client
	log    logrus.FieldLogger
}

func NewHTTPClient(cfg HTTPConfig) (*HTTPClient, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("registry url is required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid registry url: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &HTTPClient{
		base:   base,
		token:  strings.TrimSpace(cfg.Token),
		client: &http.Client{Timeout: cfg.Timeout},
		log:    logrus.WithField("component", "registry"),
	}, nil
}

type dniPayload struct {
	DocumentNumber string `json:"document_number"`
	FullName       string `json:"full_name"`
	FirstName      string `json:"first_name"`
	FirstLastName  string `json:"first_last_name"`
	SecondLastName string `json:"second_last_name"`
}

type rucPayload struct {
	DocumentNumber string `json:"numero_documento"`
	BusinessName   string `json:"razon_social"`
	Address        string `json:"direccion"`
	District       string `json:"distrito"`
	Province       string `json:"provincia"`
	Department     string `json:"departamento"`
}

func (c *HTTPClient) Lookup(ctx context.Context, documentType string, documentNumber string) (Record, error) {
	var path string
	switch documentType {
	case "dni":
		path = "/reniec/dni"
	case "ruc":
		path = "/sunat/ruc"
	default:
		return Record{}, fmt.Errorf("unsupported document type %q", documentType)
	}

	body, err := c.get(ctx, path, documentNumber)
	if err != nil {
		return Record{}, err
	}

	record := Record{DocumentType: documentType, DocumentNumber: documentNumber}
	if documentType == "dni" {
		var p dniPayload
		if err := json.Unmarshal(body, &p); err != nil {
			return Record{}, fmt.Errorf("decode dni response: %w", err)
		}
		record.FullName = p.FullName
		if strings.TrimSpace(record.FullName) == "" {
			record.FullName = strings.Join([]string{p.FirstName, p.FirstLastName, p.SecondLastName}, " ")
		}
		if p.DocumentNumber != "" {
			record.DocumentNumber = p.DocumentNumber
		}
	} else {
		var p rucPayload
		if err := json.Unmarshal(body, &p); err != nil {
			return Record{}, fmt.Errorf("decode ruc response: %w", err)
		}
		record.FullName = p.BusinessName
		record.Address = joinNonEmpty(", ", p.Address, p.District, p.Province, p.Department)
		if p.DocumentNumber != "" {
			record.DocumentNumber = p.DocumentNumber
		}
	}

	record.FullName = strings.Join(strings.Fields(record.FullName), " ")
	if record.FullName == "" {
		return Record{}, ErrNotFound
	}
	return record, nil
}

func (c *HTTPClient) get(ctx context.Context, path string, number string) ([]byte, error) {
	endpoint := c.base + path + "?" + url.Values{"numero": {number}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build registry request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("registry request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read registry response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		c.log.WithFields(logrus.Fields{"path": path, "status": resp.StatusCode}).Warn("registry lookup failed")
		return nil, fmt.Errorf("registry returned status %d", resp.StatusCode)
	}
	return body, nil
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" && p != "-" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
