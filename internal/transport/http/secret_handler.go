package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/opentrusty/pkibridge/internal/broker"
	"github.com/opentrusty/pkibridge/internal/secretstore"
)

// TransWrappedSessionKeyHeader carries a base64 session key wrapped under
// the KRA transport certificate. The secret is returned encrypted under it.
const TransWrappedSessionKeyHeader = "X-Trans-Wrapped-Session-Key"

// StoreSecretRequest is the body of POST /api/v1/secrets. Byte fields are
// base64 in JSON.
type StoreSecretRequest struct {
	SecretType   secretstore.SecretType `json:"secret_type"`
	Payload      []byte                 `json:"payload"`
	ContentType  string                 `json:"content_type,omitempty"`
	Algorithm    string                 `json:"algorithm,omitempty"`
	BitLength    int                    `json:"bit_length,omitempty"`
	Mode         string                 `json:"mode,omitempty"`
	TransportKey []byte                 `json:"transport_key,omitempty"`
}

// GenerateKeyRequest is the body of the key generation endpoints
type GenerateKeyRequest struct {
	Algorithm  string `json:"algorithm"`
	BitLength  int    `json:"bit_length,omitempty"`
	Mode       string `json:"mode,omitempty"`
	Passphrase string `json:"passphrase,omitempty"`
}

func (req *GenerateKeyRequest) spec() secretstore.KeySpec {
	spec := secretstore.KeySpec{Alg: req.Algorithm, BitLength: req.BitLength, Mode: req.Mode}
	if req.Passphrase != "" {
		spec.Passphrase = []byte(req.Passphrase)
	}
	return spec
}

// SecretResponse describes a stored secret record
type SecretResponse struct {
	ID         string                 `json:"id"`
	SecretType secretstore.SecretType `json:"secret_type"`
	Algorithm  string                 `json:"algorithm,omitempty"`
	BitLength  int                    `json:"bit_length,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

func newSecretResponse(s *broker.Secret) *SecretResponse {
	if s == nil {
		return nil
	}
	spec := s.Metadata.KeySpec()
	return &SecretResponse{
		ID:         s.ID,
		SecretType: s.Type,
		Algorithm:  spec.Alg,
		BitLength:  spec.BitLength,
		CreatedAt:  s.CreatedAt,
	}
}

// SecretPayloadResponse is the body of GET /api/v1/secrets/{id}
type SecretPayloadResponse struct {
	SecretType  secretstore.SecretType `json:"secret_type"`
	Payload     []byte                 `json:"payload"`
	ContentType string                 `json:"content_type,omitempty"`
	Algorithm   string                 `json:"algorithm,omitempty"`
	BitLength   int                    `json:"bit_length,omitempty"`
	Mode        string                 `json:"mode,omitempty"`
}

// KeyPairResponse is the body returned by asymmetric generation
type KeyPairResponse struct {
	Private    *SecretResponse `json:"private"`
	Public     *SecretResponse `json:"public"`
	Passphrase *SecretResponse `json:"passphrase,omitempty"`
}

// StoreSecret archives caller-supplied secret material
func (h *Handler) StoreSecret(w http.ResponseWriter, r *http.Request) {
	var req StoreSecretRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Payload) == 0 {
		respondError(w, http.StatusBadRequest, "payload is required")
		return
	}

	secret, err := h.broker.StoreSecret(r.Context(), &secretstore.SecretDTO{
		Type:         req.SecretType,
		Secret:       req.Payload,
		ContentType:  req.ContentType,
		TransportKey: req.TransportKey,
		KeySpec: secretstore.KeySpec{
			Alg:       req.Algorithm,
			BitLength: req.BitLength,
			Mode:      req.Mode,
		},
	})
	if err != nil {
		respondBrokerError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, newSecretResponse(secret))
}

// GetSecret retrieves secret material
func (h *Handler) GetSecret(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "secretID")
	secretType := secretstore.SecretType(r.URL.Query().Get("type"))

	dto, err := h.broker.GetSecret(r.Context(), id, secretType, r.Header.Get(TransWrappedSessionKeyHeader))
	if err != nil {
		respondBrokerError(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	respondJSON(w, http.StatusOK, &SecretPayloadResponse{
		SecretType:  dto.Type,
		Payload:     dto.Secret,
		ContentType: dto.ContentType,
		Algorithm:   dto.KeySpec.Alg,
		BitLength:   dto.KeySpec.BitLength,
		Mode:        dto.KeySpec.Mode,
	})
}

// DeleteSecret removes a secret
func (h *Handler) DeleteSecret(w http.ResponseWriter, r *http.Request) {
	if err := h.broker.DeleteSecret(r.Context(), chi.URLParam(r, "secretID")); err != nil {
		respondBrokerError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GenerateSymmetricKey generates a symmetric key inside the KRA
func (h *Handler) GenerateSymmetricKey(w http.ResponseWriter, r *http.Request) {
	var req GenerateKeyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Passphrase != "" {
		respondError(w, http.StatusBadRequest, "passphrase is only valid for asymmetric keys")
		return
	}

	secret, err := h.broker.GenerateSymmetricKey(r.Context(), req.spec())
	if err != nil {
		respondBrokerError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, newSecretResponse(secret))
}

// GenerateAsymmetricKey generates a key pair inside the KRA
func (h *Handler) GenerateAsymmetricKey(w http.ResponseWriter, r *http.Request) {
	var req GenerateKeyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	pair, err := h.broker.GenerateAsymmetricKey(r.Context(), req.spec())
	if err != nil {
		respondBrokerError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, &KeyPairResponse{
		Private:    newSecretResponse(pair.Private),
		Public:     newSecretResponse(pair.Public),
		Passphrase: newSecretResponse(pair.Passphrase),
	})
}
