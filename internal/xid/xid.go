package xid

import (
	"github.com/google/uuid"
)

// New returns prefix_<uuid>. Prefixes in use: "prod", "txn_sale",
// "txn_income", "txn_expense".
func New(prefix string) string {
	return prefix + "_" + uuid.NewString()
}
