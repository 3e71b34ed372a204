package sso

import (
	"context"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"encoding/xml"
	"fmt"
	"net/url"
	"time"

	saml2 "github.com/russellhaering/gosaml2"
	dsig "github.com/russellhaering/goxmldsig"
)

// AssertionData is the normalized output of SAML assertion parsing.
type AssertionData struct {
	NameID       string
	InResponseTo string
	Attributes   map[string][]string
}

// AssertionParser validates a base64-encoded SAML response and extracts the
// asserted attributes. The production implementation wraps gosaml2; exact
// XML-DSig correctness is that library's concern, not this package's.
type AssertionParser interface {
	Parse(encodedResponse string) (*AssertionData, error)
}

const defaultNameIDFormat = "urn:oasis:names:tc:SAML:2.0:nameid-format:emailAddress"

// initiateSAML builds an AuthnRequest redirect to the provider's SSO endpoint
// and records a transient entry under the generated request ID.
func (f *Framework) initiateSAML(ctx context.Context, provider *Provider, redirectURI, state string) InitiationResult {
	requestID, err := newSAMLRequestID()
	if err != nil {
		return InitiationResult{Error: errAuthenticationFail}
	}

	authnRequest := buildAuthnRequest(authnRequestParams{
		ID:           requestID,
		IssueInstant: f.nowFn().UTC(),
		Destination:  provider.SAML.SSOURL,
		Issuer:       f.cfg.EntityID,
		ACSURL:       f.callbackURL(provider.ID),
		NameIDFormat: nameIDFormat(provider),
	})
	encoded := base64.StdEncoding.EncodeToString([]byte(authnRequest))

	relayState := state
	if relayState == "" {
		relayState = redirectURI
	}

	ssoURL, err := url.Parse(provider.SAML.SSOURL)
	if err != nil {
		return InitiationResult{Error: fmt.Sprintf("invalid sso_url: %v", err)}
	}
	query := ssoURL.Query()
	query.Set("SAMLRequest", encoded)
	query.Set("RelayState", relayState)
	ssoURL.RawQuery = query.Encode()

	if err := f.state.Put(ctx, requestID, &TransientState{
		State:       state,
		RedirectURI: redirectURI,
		ProviderID:  provider.ID,
		CreatedAt:   f.nowFn(),
	}); err != nil {
		f.logger.WithError(err).Error("failed to record SAML request state")
		return InitiationResult{Error: errAuthenticationFail}
	}

	return InitiationResult{
		AuthURL:   ssoURL.String(),
		RequestID: requestID,
		Method:    "redirect",
	}
}

// handleSAMLCallback decodes and validates the SAMLResponse. SP-initiated
// responses carry InResponseTo and must match an unconsumed request record;
// IdP-initiated responses carry none and skip correlation.
func (f *Framework) handleSAMLCallback(ctx context.Context, provider *Provider, callbackData map[string]string) AuthResult {
	encoded := callbackData["SAMLResponse"]
	if encoded == "" {
		return f.fail(provider, provider.ID, "missing_saml_response", errMissingSAMLResponse)
	}

	if inResponseTo := extractInResponseTo(encoded); inResponseTo != "" {
		record, ok := f.state.Consume(ctx, inResponseTo)
		if !ok || record.ProviderID != provider.ID {
			return f.fail(provider, provider.ID, "saml_replay", errAuthenticationFail)
		}
	}

	parser, err := f.parserFor(provider)
	if err != nil {
		f.logger.WithError(err).WithField("provider", provider.Name).Error("SAML parser construction failed")
		return f.fail(provider, provider.ID, "saml_config", errAuthenticationFail)
	}
	assertion, err := parser.Parse(encoded)
	if err != nil {
		f.logger.WithError(err).WithField("provider", provider.Name).Warn("SAML assertion rejected")
		return f.fail(provider, provider.ID, "saml_assertion", errAuthenticationFail)
	}

	attrs := assertion.Attributes
	if attrs == nil {
		attrs = make(map[string][]string)
	}
	if assertion.NameID != "" {
		table := DefaultAttributeMap(ProtocolSAML2)
		if provider.AttributeMapping != nil {
			table = *provider.AttributeMapping
		}
		if table.UserID != "" {
			if _, ok := attrs[table.UserID]; !ok {
				attrs[table.UserID] = []string{assertion.NameID}
			}
		}
	}
	return f.createSession(provider, attrs)
}

// GenerateSAMLMetadata returns the SP metadata document for this service,
// parameterized by the configured entity ID and callback URLs.
func (f *Framework) GenerateSAMLMetadata() string {
	acs := f.cfg.BaseURL + "/auth/sso/callback"
	sls := f.cfg.BaseURL + "/auth/sso/logout"
	return fmt.Sprintf(`<?xml version="1.0"?>
<md:EntityDescriptor xmlns:md="urn:oasis:names:tc:SAML:2.0:metadata"
                     entityID="%s">
  <md:SPSSODescriptor AuthnRequestsSigned="false"
                      WantAssertionsSigned="true"
                      protocolSupportEnumeration="urn:oasis:names:tc:SAML:2.0:protocol">
    <md:SingleLogoutService Binding="urn:oasis:names:tc:SAML:2.0:bindings:HTTP-Redirect"
                            Location="%s"/>
    <md:AssertionConsumerService Binding="urn:oasis:names:tc:SAML:2.0:bindings:HTTP-POST"
                                 Location="%s"
                                 index="1"/>
  </md:SPSSODescriptor>
</md:EntityDescriptor>`, f.cfg.EntityID, sls, acs)
}

// newAssertionParser builds the gosaml2-backed parser for a provider. It
// requires the IdP certificate; providers without one cannot validate
// assertions and fail the callback instead.
func (f *Framework) newAssertionParser(provider *Provider) (AssertionParser, error) {
	if provider.SAML == nil {
		return nil, fmt.Errorf("saml_config is required")
	}
	if provider.SAML.Certificate == "" {
		return nil, fmt.Errorf("idp certificate is required to validate assertions")
	}

	certBlock, _ := pem.Decode([]byte(provider.SAML.Certificate))
	if certBlock == nil {
		return nil, fmt.Errorf("failed to decode certificate PEM")
	}
	cert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	certStore := dsig.MemoryX509CertificateStore{
		Roots: []*x509.Certificate{cert},
	}

	var keyStore dsig.X509KeyStore
	if provider.SAML.SignRequests && f.keys != nil {
		priv, _, err := f.keys.EnsureKeys()
		if err == nil && priv != nil {
			keyStore = dsig.TLSCertKeyStore{
				PrivateKey:  priv,
				Certificate: [][]byte{certBlock.Bytes},
			}
		}
	}

	sp := &saml2.SAMLServiceProvider{
		IdentityProviderSSOURL:      provider.SAML.SSOURL,
		IdentityProviderIssuer:      provider.SAML.EntityID,
		ServiceProviderIssuer:       f.cfg.EntityID,
		AssertionConsumerServiceURL: f.callbackURL(provider.ID),
		AudienceURI:                 f.cfg.EntityID,
		IDPCertificateStore:         &certStore,
		SPKeyStore:                  keyStore,
		SignAuthnRequests:           provider.SAML.SignRequests && keyStore != nil,
		NameIdFormat:                nameIDFormat(provider),
	}
	return &gosaml2Parser{sp: sp}, nil
}

type gosaml2Parser struct {
	sp *saml2.SAMLServiceProvider
}

func (p *gosaml2Parser) Parse(encodedResponse string) (*AssertionData, error) {
	info, err := p.sp.RetrieveAssertionInfo(encodedResponse)
	if err != nil {
		return nil, fmt.Errorf("failed to validate assertion: %w", err)
	}
	if info.WarningInfo != nil {
		if info.WarningInfo.InvalidTime {
			return nil, fmt.Errorf("assertion has invalid time")
		}
		if info.WarningInfo.NotInAudience {
			return nil, fmt.Errorf("assertion not in expected audience")
		}
	}

	data := &AssertionData{
		NameID:       info.NameID,
		InResponseTo: extractInResponseTo(encodedResponse),
		Attributes:   make(map[string][]string),
	}
	for _, attr := range info.Values {
		for _, value := range attr.Values {
			data.Attributes[attr.Name] = append(data.Attributes[attr.Name], value.Value)
		}
	}
	return data, nil
}

type authnRequestParams struct {
	ID           string
	IssueInstant time.Time
	Destination  string
	Issuer       string
	ACSURL       string
	NameIDFormat string
}

func buildAuthnRequest(p authnRequestParams) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<samlp:AuthnRequest xmlns:samlp="urn:oasis:names:tc:SAML:2.0:protocol"
                    xmlns:saml="urn:oasis:names:tc:SAML:2.0:assertion"
                    ID="%s"
                    Version="2.0"
                    IssueInstant="%s"
                    Destination="%s"
                    AssertionConsumerServiceURL="%s"
                    ProtocolBinding="urn:oasis:names:tc:SAML:2.0:bindings:HTTP-POST">
  <saml:Issuer>%s</saml:Issuer>
  <samlp:NameIDPolicy Format="%s" AllowCreate="true"/>
</samlp:AuthnRequest>`,
		p.ID,
		p.IssueInstant.Format("2006-01-02T15:04:05Z"),
		p.Destination,
		p.ACSURL,
		p.Issuer,
		p.NameIDFormat)
}

// newSAMLRequestID returns a fresh "_"-prefixed random request ID; SAML IDs
// must not start with a digit.
func newSAMLRequestID() (string, error) {
	b := make([]byte, 20)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate request ID: %w", err)
	}
	return "_" + hex.EncodeToString(b), nil
}

// extractInResponseTo pulls the InResponseTo attribute off the response
// envelope without validating it; validation belongs to the parser.
func extractInResponseTo(encodedResponse string) string {
	raw, err := base64.StdEncoding.DecodeString(encodedResponse)
	if err != nil {
		return ""
	}
	var envelope struct {
		InResponseTo string `xml:"InResponseTo,attr"`
	}
	if err := xml.Unmarshal(raw, &envelope); err != nil {
		return ""
	}
	return envelope.InResponseTo
}

func (f *Framework) callbackURL(providerID string) string {
	return f.cfg.BaseURL + "/auth/sso/" + providerID + "/callback"
}

func nameIDFormat(provider *Provider) string {
	if provider.SAML != nil && provider.SAML.NameIDFormat != "" {
		return provider.SAML.NameIDFormat
	}
	return defaultNameIDFormat
}
