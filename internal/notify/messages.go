// internal/notify/messages.go
package notify

import (
	"fmt"

	"wallet-engine/internal/domain"

	"github.com/shopspring/decimal"
)

// message is one title/body pair addressed to one actor.
type message struct {
	recipient *domain.Actor
	title     string
	body      string
}

// parties is the re-read state a completed transaction is described from.
type parties struct {
	tx           *domain.Transaction
	sender       *domain.Actor
	senderWallet *domain.Wallet
	receiver     *domain.Actor // nil for external movements and the system wallet
	receiverWlt  *domain.Wallet
}

func money(amount decimal.Decimal, currency string) string {
	return amount.StringFixed(2) + " " + currency
}

func balanceLine(w *domain.Wallet) string {
	if w == nil {
		return ""
	}
	return " New balance: " + money(w.Balance, w.Currency) + "."
}

func agentLabel(a *domain.Actor) string {
	if a.AgentCode != nil && *a.AgentCode != "" {
		return *a.AgentCode
	}
	return "Unknown Agent"
}

// compose returns the messages for a completed transaction, sender first.
func compose(p parties) []message {
	tx := p.tx
	if p.sender == nil {
		return nil
	}
	amt := money(tx.Amount, tx.Currency)
	// The fee is named to whoever bore it; a receiver-borne fee is netted from what arrives.
	senderFee, received, receiverFee := "", amt, ""
	if tx.Fee.IsPositive() {
		if tx.FeeBearer == domain.ChargePartyReceiver && p.receiver != nil {
			received = money(tx.Amount.Sub(tx.Fee), tx.Currency)
			receiverFee = fmt.Sprintf(" Fee: %s.", money(tx.Fee, tx.Currency))
		} else {
			senderFee = fmt.Sprintf(" Fee: %s.", money(tx.Fee, tx.Currency))
		}
	}
	var out []message
	add := func(to *domain.Actor, wallet *domain.Wallet, title, body string) {
		if to == nil {
			return
		}
		out = append(out, message{recipient: to, title: title, body: body + balanceLine(wallet)})
	}

	switch tx.Type {
	case domain.TransactionTypeTransfer:
		if p.receiver == nil {
			return nil
		}
		add(p.sender, p.senderWallet, "Transfer Sent",
			fmt.Sprintf("You sent %s to %s.%s", amt, p.receiver.Label(), senderFee))
		add(p.receiver, p.receiverWlt, "Money Received",
			fmt.Sprintf("You received %s from %s.%s", received, p.sender.Label(), receiverFee))

	case domain.TransactionTypePayment:
		if p.receiver == nil {
			return nil
		}
		add(p.sender, p.senderWallet, "Payment Sent",
			fmt.Sprintf("You paid %s to %s.%s", amt, p.receiver.Label(), senderFee))
		add(p.receiver, p.receiverWlt, "Payment Received",
			fmt.Sprintf("You received a payment of %s from %s.%s", received, p.sender.Label(), receiverFee))

	case domain.TransactionTypeDeposit:
		if p.receiver == nil {
			add(p.sender, p.senderWallet, "Wallet Funded",
				fmt.Sprintf("Your wallet was funded with %s.%s", amt, senderFee))
			return out
		}
		add(p.sender, p.senderWallet, "Deposit Completed",
			fmt.Sprintf("You deposited %s into %s's wallet.%s", amt, p.receiver.Label(), senderFee))
		add(p.receiver, p.receiverWlt, "Money Deposited",
			fmt.Sprintf("An agent deposited %s into your wallet.%s", received, receiverFee))

	case domain.TransactionTypeWithdrawal:
		if p.receiver == nil {
			add(p.sender, p.senderWallet, "Withdrawal Successful",
				fmt.Sprintf("You withdrew %s from your wallet.%s", amt, senderFee))
			return out
		}
		add(p.sender, p.senderWallet, "Cash-out Successful",
			fmt.Sprintf("You cashed out %s with agent %s.%s", amt, agentLabel(p.receiver), senderFee))
		add(p.receiver, p.receiverWlt, "Cash-out Received",
			fmt.Sprintf("You received a cash-out payment of %s from %s.%s", received, p.sender.Label(), receiverFee))

	case domain.TransactionTypeCommission:
		add(p.sender, p.senderWallet, "Commission Charged",
			fmt.Sprintf("A commission of %s was deducted from your wallet.", amt))
	}
	return out
}
