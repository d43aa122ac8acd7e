package saml

import (
	"bytes"
	"compress/flate"
	"encoding/base64"
	"encoding/xml"
	"io"
	"net/http"

	apperrors "github.com/opetus/case-gateway/internal/errors"
)

// logoutRequest is the subset of an IdP-initiated LogoutRequest the gateway
// needs to build a logout-token correlation value.
type logoutRequest struct {
	XMLName      xml.Name `xml:"LogoutRequest"`
	NameID       string   `xml:"NameID"`
	SessionIndex string   `xml:"SessionIndex"`
}

// ParseLogoutRequest extracts the name identifier and session index from a
// single-logout request delivered through the browser (front channel). Both
// the plain POST binding and the deflated redirect binding payloads are
// accepted.
func ParseLogoutRequest(r *http.Request) (nameID, sessionIndex string, err error) {
	if parseErr := r.ParseForm(); parseErr != nil {
		return "", "", apperrors.AuthenticationWrap("saml: parse logout form", parseErr)
	}

	raw := r.FormValue("SAMLRequest")
	if raw == "" {
		return "", "", apperrors.Authentication("saml: missing SAMLRequest")
	}

	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return "", "", apperrors.AuthenticationWrap("saml: decode logout request", err)
	}

	var req logoutRequest
	if unmarshalErr := xml.Unmarshal(decoded, &req); unmarshalErr != nil {
		// Redirect-binding payloads are deflated before encoding.
		inflated, inflateErr := io.ReadAll(flate.NewReader(bytes.NewReader(decoded)))
		if inflateErr != nil {
			return "", "", apperrors.AuthenticationWrap("saml: unmarshal logout request", unmarshalErr)
		}
		if unmarshalErr = xml.Unmarshal(inflated, &req); unmarshalErr != nil {
			return "", "", apperrors.AuthenticationWrap("saml: unmarshal logout request", unmarshalErr)
		}
	}

	if req.NameID == "" || req.SessionIndex == "" {
		return "", "", apperrors.Authentication("saml: logout request missing NameID or SessionIndex")
	}
	return req.NameID, req.SessionIndex, nil
}
