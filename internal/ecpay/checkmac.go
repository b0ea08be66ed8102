// Package ecpay implements the payment gateway integration: CheckMacValue
// signing, checkout request building, callback verification, and trade
// status queries.
package ecpay

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// Restoration is a single post-encoding character restoration: From is a
// lowercase percent-escape, To is the literal it becomes.
type Restoration struct {
	From string
	To   string
}

// EncodeTable is the ordered set of restorations applied to the
// percent-encoded, lower-cased signing string. The gateway documents this
// table in terms of .NET's UrlEncode; two incompatible variants exist in the
// wild and a deployment must pin the one its verifier expects with a golden
// test, not by guessing.
type EncodeTable []Restoration

// EncodeTableDotNet restores the characters .NET's UrlEncode leaves literal.
// Space is already "+" after url.QueryEscape, so no %20 entry is needed.
var EncodeTableDotNet = EncodeTable{
	{"%2d", "-"},
	{"%5f", "_"},
	{"%2e", "."},
	{"%21", "!"},
	{"%2a", "*"},
	{"%28", "("},
	{"%29", ")"},
}

// EncodeTableSpaceOnly keeps every escape except the space, which
// url.QueryEscape already emits as "+".
var EncodeTableSpaceOnly = EncodeTable{}

// EncodeTableByName resolves a configuration value to a preset table.
// Unknown names fall back to the dotnet table.
func EncodeTableByName(name string) EncodeTable {
	if name == "space-only" {
		return EncodeTableSpaceOnly
	}
	return EncodeTableDotNet
}

// Signer computes CheckMacValue signatures. The zero value is not usable;
// construct with the merchant's HashKey and HashIV.
type Signer struct {
	HashKey string
	HashIV  string

	// Table selects the character-restoration variant. Nil means dotnet.
	Table EncodeTable

	// TrailingAmpersand appends "&" after the last sorted key/value pair
	// before the HashIV wrap. Historical integrations disagree on this;
	// it changes the digest, so it is configuration.
	TrailingAmpersand bool
}

// Sign computes the signature over params. Any CheckMacValue entry in params
// is ignored. Same parameters always produce the same 64-character uppercase
// hex digest regardless of map iteration order.
func (s Signer) Sign(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == FieldCheckMacValue {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}
	qs := strings.Join(pairs, "&")
	if s.TrailingAmpersand {
		// Some historical integrations append a separator after the last
		// pair, giving "...&&HashIV=" after the wrap.
		qs += "&"
	}
	raw := "HashKey=" + s.HashKey + "&" + qs + "&HashIV=" + s.HashIV

	encoded := strings.ToLower(url.QueryEscape(raw))

	table := s.Table
	if table == nil {
		table = EncodeTableDotNet
	}
	for _, r := range table {
		encoded = strings.ReplaceAll(encoded, r.From, r.To)
	}

	sum := sha256.Sum256([]byte(encoded))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// Matches reports whether the CheckMacValue carried in params verifies
// against the signature recomputed from the remaining fields.
func (s Signer) Matches(params map[string]string) bool {
	received, ok := params[FieldCheckMacValue]
	if !ok || received == "" {
		return false
	}
	return s.Sign(params) == received
}
