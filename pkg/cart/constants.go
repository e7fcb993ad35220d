package cart

const (
	operationRefresh        = "refresh"
	operationAddProduct     = "add_product"
	operationChangeQuantity = "change_quantity"
	operationRemoveItem     = "remove_item"
	operationClear          = "clear"

	operationStatusOK      = "ok"
	operationStatusIgnored = "ignored"
	operationStatusError   = "error"

	errorSubjectToken    = "token"
	errorSubjectRemote   = "remote"
	errorSubjectSnapshot = "snapshot"
	errorSubjectView     = "view"
	errorCodeMissing     = "missing"
	errorCodeCall        = "call"
	errorCodeFetch       = "fetch"
	errorCodeClosed      = "closed"

	productGuardPrefix  = "product:"
	provisionalIDPrefix = "pending-"
)
