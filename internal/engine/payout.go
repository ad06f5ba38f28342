package engine

import (
	"regexp"
	"strconv"
	"strings"

	"wallet_ledger/internal/domain"
)

// Payout is where withdrawn money goes. It is either a BankTransfer or a CardPayout.
type Payout interface {
	Method() string
	Describe() string // masked, safe to store and display
	validate() error
}

// BankTransfer pays out to a bank account.
type BankTransfer struct {
	BankAccount string
	IFSCCode    string
}

// CardPayout pays out to a stored card payment method owned by the wallet holder.
type CardPayout struct {
	PaymentMethodID uint
}

var (
	bankAccountPattern = regexp.MustCompile(`^[A-Za-z0-9]{6,34}$`)
	ifscPattern        = regexp.MustCompile(`^[A-Z]{4}0[A-Z0-9]{6}$`)
)

func (BankTransfer) Method() string { return "BANK_TRANSFER" }

func (b BankTransfer) Describe() string {
	return domain.MaskAccount(b.BankAccount) + " / " + strings.ToUpper(b.IFSCCode)
}

func (b BankTransfer) validate() error {
	if strings.TrimSpace(b.BankAccount) == "" || strings.TrimSpace(b.IFSCCode) == "" {
		return domain.Validationf("bank transfer payouts need bankAccount and ifscCode")
	}
	if !bankAccountPattern.MatchString(b.BankAccount) {
		return domain.Validationf("bankAccount must be 6 to 34 letters or digits")
	}
	if !ifscPattern.MatchString(strings.ToUpper(b.IFSCCode)) {
		return domain.Validationf("ifscCode %q is not a valid IFSC", b.IFSCCode)
	}
	return nil
}

func (CardPayout) Method() string { return "CARD" }

func (c CardPayout) Describe() string { return "payment method " + strconv.FormatUint(uint64(c.PaymentMethodID), 10) }

func (c CardPayout) validate() error {
	if c.PaymentMethodID == 0 {
		return domain.Validationf("card payouts need paymentMethodId")
	}
	return nil
}

// ParsePayout builds the payout variant named by method.
func ParsePayout(method, bankAccount, ifscCode string, paymentMethodID uint) (Payout, error) {
	var p Payout
	switch strings.ToUpper(strings.TrimSpace(method)) {
	case "BANK_TRANSFER", "BANK", "BANK_ACCOUNT":
		p = BankTransfer{BankAccount: strings.TrimSpace(bankAccount), IFSCCode: strings.TrimSpace(ifscCode)}
	case "CARD", "DEBIT_CARD", "CREDIT_CARD":
		p = CardPayout{PaymentMethodID: paymentMethodID}
	case "":
		return nil, domain.Validationf("paymentMethod is required")
	default:
		return nil, domain.Validationf("unsupported payout method %q", method)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}
