package cryptoutils

import (
	"crypto/x509"
	"encoding/asn1"
	"encoding/pem"
	"errors"
	"fmt"
	"time"

	tdx_abi "github.com/google/go-tdx-guest/abi"
	tdx_pb "github.com/google/go-tdx-guest/proto/tdx"
	"github.com/google/go-tdx-guest/verify"
	"github.com/ruteri/tee-agent-registry/interfaces"
)

var (
	// OIDSGXExtensions is the Intel SGX extension carried by PCK certificates.
	OIDSGXExtensions = asn1.ObjectIdentifier{1, 2, 840, 113741, 1, 13, 1}
	// OIDPPID is the PPID entry inside the SGX extension.
	OIDPPID = asn1.ObjectIdentifier{1, 2, 840, 113741, 1, 13, 1, 1}
)

// TDXQuote holds the fields of a verified TDX v4 quote the registry consumes.
type TDXQuote struct {
	MRTD       [48]byte
	RTMRs      [4][48]byte
	ReportData [64]byte
	PPID       interfaces.PlatformID
}

// QuoteVerifyOptions controls how deeply a quote is checked.
type QuoteVerifyOptions struct {
	// Now is the time certificates and collateral are evaluated at.
	Now time.Time

	// CheckCollateral fetches TCB info and QE identity from Intel PCS and checks
	// CRLs. Without it only the quote signature and PCK chain are verified.
	CheckCollateral bool
}

// VerifyTDXQuote parses and verifies a raw TDX quote. A failure of the
// signature chain is reported as ErrBadSignature, a failure that only appears
// once collateral and revocation lists are consulted as
// ErrStaleOrRevokedCollateral.
func VerifyTDXQuote(rawQuote []byte, opts QuoteVerifyOptions) (*TDXQuote, error) {
	protoQuote, err := tdx_abi.QuoteToProto(rawQuote)
	if err != nil {
		return nil, fmt.Errorf("%w: could not parse quote: %v", interfaces.ErrBadSignature, err)
	}

	v4Quote, ok := protoQuote.(*tdx_pb.QuoteV4)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported quote type %T", interfaces.ErrBadSignature, protoQuote)
	}

	options := verify.DefaultOptions()
	if !opts.Now.IsZero() {
		options.Now = opts.Now
	}
	if err := verify.TdxQuote(protoQuote, options); err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBadSignature, err)
	}

	if opts.CheckCollateral {
		options.GetCollateral = true
		options.CheckRevocations = true
		if err := verify.TdxQuote(protoQuote, options); err != nil {
			return nil, fmt.Errorf("%w: %v", interfaces.ErrStaleOrRevokedCollateral, err)
		}
	}

	return quoteFromProto(v4Quote)
}

func quoteFromProto(q *tdx_pb.QuoteV4) (*TDXQuote, error) {
	body := q.GetTdQuoteBody()
	if body == nil {
		return nil, fmt.Errorf("%w: quote has no TD body", interfaces.ErrBadSignature)
	}

	out := &TDXQuote{}
	if err := copyExact(out.MRTD[:], body.GetMrTd(), "mrtd"); err != nil {
		return nil, err
	}
	rtmrs := body.GetRtmrs()
	if len(rtmrs) != 4 {
		return nil, fmt.Errorf("%w: expected 4 rtmrs, got %d", interfaces.ErrBadSignature, len(rtmrs))
	}
	for i := range rtmrs {
		if err := copyExact(out.RTMRs[i][:], rtmrs[i], fmt.Sprintf("rtmr%d", i)); err != nil {
			return nil, err
		}
	}

	// Report data may legitimately be absent; binding is checked by the caller.
	if rd := body.GetReportData(); len(rd) == 64 {
		copy(out.ReportData[:], rd)
	}

	chain := q.GetSignedData().GetCertificationData().GetQeReportCertificationData().GetPckCertificateChainData().GetPckCertChain()
	ppid, err := PPIDFromPCKChain(chain)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBadSignature, err)
	}
	out.PPID = ppid

	return out, nil
}

// PPIDFromPCKChain extracts the PPID from the leaf of a PEM-encoded PCK
// certificate chain.
func PPIDFromPCKChain(chainPEM []byte) (interfaces.PlatformID, error) {
	block, _ := pem.Decode(chainPEM)
	if block == nil || block.Type != "CERTIFICATE" {
		return interfaces.PlatformID{}, errors.New("pck chain does not start with a PEM certificate")
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return interfaces.PlatformID{}, fmt.Errorf("could not parse pck certificate: %w", err)
	}

	return PPIDFromPCKCertificate(cert)
}

type sgxExtensionEntry struct {
	ID    asn1.ObjectIdentifier
	Value asn1.RawValue
}

// PPIDFromPCKCertificate reads the PPID from the SGX extension of a PCK leaf
// certificate.
func PPIDFromPCKCertificate(cert *x509.Certificate) (interfaces.PlatformID, error) {
	for _, ext := range cert.Extensions {
		if !ext.Id.Equal(OIDSGXExtensions) {
			continue
		}

		var entries []sgxExtensionEntry
		if _, err := asn1.Unmarshal(ext.Value, &entries); err != nil {
			return interfaces.PlatformID{}, fmt.Errorf("could not parse sgx extensions: %w", err)
		}

		for _, entry := range entries {
			if !entry.ID.Equal(OIDPPID) {
				continue
			}
			var ppid []byte
			if _, err := asn1.Unmarshal(entry.Value.FullBytes, &ppid); err != nil {
				return interfaces.PlatformID{}, fmt.Errorf("could not parse ppid: %w", err)
			}
			if len(ppid) != 16 {
				return interfaces.PlatformID{}, fmt.Errorf("invalid ppid length %d", len(ppid))
			}
			var id interfaces.PlatformID
			copy(id[:], ppid)
			return id, nil
		}
		return interfaces.PlatformID{}, errors.New("sgx extensions carry no ppid")
	}

	return interfaces.PlatformID{}, errors.New("certificate has no sgx extensions")
}

func copyExact(dst, src []byte, name string) error {
	if len(src) != len(dst) {
		return fmt.Errorf("%w: invalid %s length %d", interfaces.ErrBadSignature, name, len(src))
	}
	copy(dst, src)
	return nil
}
