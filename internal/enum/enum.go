package enum

// ── Order lifecycle (CHECK constrained in DB) ──

const (
	OrderStatusReceived  = "Received"
	OrderStatusPreparing = "Preparing"
	OrderStatusReady     = "Ready"
	OrderStatusCompleted = "Completed"
)

// ── Payment ──

// Stored payment methods. The request-level variants paypay_now and
// paypay_after both normalize to PaymentMethodPayPay; the now/after split
// only changes what flow the client presents next.
const (
	PaymentMethodPayPay = "paypay"
	PaymentMethodManual = "manual"
)

// Request-level payment method tags accepted by POST /orders.
const (
	PaymentTagPayPayNow   = "paypay_now"
	PaymentTagPayPayAfter = "paypay_after"
	PaymentTagPayPay      = "paypay"
	PaymentTagManual      = "manual"
)

// Payment status values. Manual orders carry no payment status (NULL).
const (
	PaymentStatusPending = "pending"
	PaymentStatusPaid    = "paid"
)

// ── Users ──

const (
	UserRoleAdmin    = "admin"
	UserRoleStaff    = "staff"
	UserRoleCustomer = "customer"
)
