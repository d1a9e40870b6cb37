package query

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"createfi_go/internal/domain"
)

// amount is a ledger integer in planck. The node renders it as a JSON number,
// a decimal string, or a 0x-prefixed hex string.
type amount struct {
	planck *big.Int
}

func (a *amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		a.planck = nil
		return nil
	}
	var s string
	if data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	} else {
		s = string(data)
	}
	n, err := domain.ParsePlanck(s)
	if err != nil {
		return err
	}
	a.planck = n
	return nil
}

func (a amount) Decimal() decimal.Decimal {
	return domain.FromPlanck(a.planck)
}

// counter is a small unsigned integer (votes, block numbers), possibly hex.
type counter uint64

func (c *counter) UnmarshalJSON(data []byte) error {
	var a amount
	if err := a.UnmarshalJSON(data); err != nil {
		return err
	}
	if a.planck == nil {
		*c = 0
		return nil
	}
	if !a.planck.IsUint64() {
		return fmt.Errorf("counter %s overflows uint64", a.planck)
	}
	*c = counter(a.planck.Uint64())
	return nil
}

// text is a byte-vector field. Valid UTF-8 hex payloads are decoded, anything
// else is kept as rendered.
type text string

func (t *text) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var parts []string
		if err2 := json.Unmarshal(data, &parts); err2 != nil {
			return fmt.Errorf("expected string: %w", err)
		}
		for i := range parts {
			parts[i] = decodeHexText(parts[i])
		}
		*t = text(strings.Join(parts, "/"))
		return nil
	}
	*t = text(decodeHexText(s))
	return nil
}

func decodeHexText(s string) string {
	if !strings.HasPrefix(s, "0x") || len(s) == 2 {
		return s
	}
	b, err := hex.DecodeString(s[2:])
	if err != nil || !utf8.Valid(b) {
		return s
	}
	return string(b)
}

type accountInfo struct {
	Data *struct {
		Free       amount  `json:"free"`
		Reserved   amount  `json:"reserved"`
		Frozen     *amount `json:"frozen"`
		MiscFrozen *amount `json:"miscFrozen"`
	} `json:"data"`
}

func decodeBalance(address string, raw json.RawMessage) (domain.Balance, error) {
	var info accountInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return domain.Balance{}, decodeErr(err, "system.account %s", address)
	}
	if info.Data == nil {
		return domain.Balance{}, decodeErr(nil, "system.account %s: missing data", address)
	}
	b := domain.Balance{
		Address:  address,
		Free:     info.Data.Free.Decimal(),
		Reserved: info.Data.Reserved.Decimal(),
	}
	switch {
	case info.Data.Frozen != nil:
		b.Frozen = info.Data.Frozen.Decimal()
	case info.Data.MiscFrozen != nil:
		b.Frozen = info.Data.MiscFrozen.Decimal()
	}
	return b, nil
}

type poolRecord struct {
	TokenPair      text   `json:"tokenPair"`
	ReserveA       amount `json:"reserveA"`
	ReserveB       amount `json:"reserveB"`
	TotalLiquidity amount `json:"totalLiquidity"`
	LPTokenSupply  amount `json:"lpTokenSupply"`
	FeeCollector   string `json:"feeCollector"`
}

func decodePool(i int, e domain.StorageEntry) (domain.Pool, error) {
	id, err := keyPart(e, 0)
	if err != nil {
		return domain.Pool{}, decodeErr(err, "dex.pools entry %d", i)
	}
	var rec poolRecord
	if err := strictObject(e.Value, &rec); err != nil {
		return domain.Pool{}, decodeErr(err, "dex.pools entry %d", i)
	}
	return domain.Pool{
		ID:             id,
		TokenPair:      string(rec.TokenPair),
		ReserveA:       rec.ReserveA.Decimal(),
		ReserveB:       rec.ReserveB.Decimal(),
		TotalLiquidity: rec.TotalLiquidity.Decimal(),
		LPTokenSupply:  rec.LPTokenSupply.Decimal(),
		FeeCollector:   rec.FeeCollector,
	}, nil
}

type vaultRecord struct {
	CollateralType   text   `json:"collateralType"`
	CollateralAmount amount `json:"collateralAmount"`
	DebtAmount       amount `json:"debtAmount"`
}

func decodeVault(i int, e domain.StorageEntry) (domain.Vault, error) {
	id, err := keyPart(e, 0)
	if err != nil {
		return domain.Vault{}, decodeErr(err, "fiStablecoin.vaults entry %d", i)
	}
	owner, err := keyPart(e, 1)
	if err != nil {
		return domain.Vault{}, decodeErr(err, "fiStablecoin.vaults entry %d", i)
	}
	var rec vaultRecord
	if err := strictObject(e.Value, &rec); err != nil {
		return domain.Vault{}, decodeErr(err, "fiStablecoin.vaults entry %d", i)
	}
	return domain.Vault{
		ID:               id,
		Owner:            owner,
		CollateralType:   string(rec.CollateralType),
		CollateralAmount: rec.CollateralAmount.Decimal(),
		DebtAmount:       rec.DebtAmount.Decimal(),
	}, nil
}

type proposalRecord struct {
	Proposer    string  `json:"proposer"`
	Title       text    `json:"title"`
	Description text    `json:"description"`
	Amount      amount  `json:"amount"`
	Recipient   string  `json:"recipient"`
	YesVotes    counter `json:"yesVotes"`
	NoVotes     counter `json:"noVotes"`
	StartBlock  counter `json:"startBlock"`
	EndBlock    counter `json:"endBlock"`
	Executed    bool    `json:"executed"`
	Cancelled   bool    `json:"cancelled"`
}

func decodeProposal(i int, e domain.StorageEntry) (domain.Proposal, error) {
	id, err := keyPart(e, 0)
	if err != nil {
		return domain.Proposal{}, decodeErr(err, "dao.proposals entry %d", i)
	}
	var rec proposalRecord
	if err := strictObject(e.Value, &rec); err != nil {
		return domain.Proposal{}, decodeErr(err, "dao.proposals entry %d", i)
	}
	return domain.Proposal{
		ID:           id,
		Proposer:     rec.Proposer,
		Title:        string(rec.Title),
		Description:  string(rec.Description),
		Amount:       rec.Amount.Decimal(),
		Recipient:    rec.Recipient,
		VotesFor:     uint64(rec.YesVotes),
		VotesAgainst: uint64(rec.NoVotes),
		StartBlock:   uint64(rec.StartBlock),
		EndBlock:     uint64(rec.EndBlock),
		Executed:     rec.Executed,
		Cancelled:    rec.Cancelled,
	}, nil
}

// keyPart renders the n-th storage key argument as a string.
func keyPart(e domain.StorageEntry, n int) (string, error) {
	if n >= len(e.Key) {
		return "", fmt.Errorf("key has %d parts, want at least %d", len(e.Key), n+1)
	}
	raw := bytes.TrimSpace(e.Key[n])
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var num json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&num); err == nil {
		if _, err := strconv.ParseUint(num.String(), 10, 64); err == nil {
			return num.String(), nil
		}
	}
	return "", fmt.Errorf("key part %d: unexpected %s", n, string(raw))
}

// strictObject requires a JSON object before decoding into v.
func strictObject(raw json.RawMessage, v any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return fmt.Errorf("expected object, got %.40s", string(raw))
	}
	return json.Unmarshal(raw, v)
}

func decodeErr(cause error, format string, args ...any) error {
	reason := fmt.Sprintf(format, args...)
	if cause != nil {
		reason += ": " + cause.Error()
	}
	return &domain.Error{Kind: domain.KindDecode, Reason: reason, Err: cause}
}
