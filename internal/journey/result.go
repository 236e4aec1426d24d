package journey

import (
	"time"
)

// Status is the overall outcome of a run.
type Status string

const (
	StatusPassed Status = "passed"
	StatusFailed Status = "failed"
)

// Hard checkpoints. A failing checkpoint ends the run.
const (
	CheckpointAuthenticated = "authenticated"
	CheckpointSearchResults = "search_results"
	CheckpointProductImage  = "product_image"
	CheckpointCartItem      = "cart_contains_item"
)

// Steps of the scripted journey, in order.
const (
	StepOpenSession        = "open_session"
	StepOpenShop           = "open_shop"
	StepGoToLogin          = "go_to_login"
	StepGoToRegistration   = "go_to_registration"
	StepFillRegistration   = "fill_registration"
	StepSubmitRegistration = "submit_registration"
	StepVerifyAccount      = "verify_account"
	StepSearch             = "search"
	StepVerifyResults      = "verify_results"
	StepSelectProduct      = "select_product"
	StepVerifyProduct      = "verify_product"
	StepAddToCart          = "add_to_cart"
	StepProceedToCart      = "proceed_to_cart"
	StepVerifyCart         = "verify_cart"
)

// Checkpoint is the recorded evaluation of one hard checkpoint.
type Checkpoint struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// Annotation is a soft failure or notable deviation that did not stop the
// run.
type Annotation struct {
	Step    string `json:"step"`
	Kind    Kind   `json:"kind,omitempty"`
	Message string `json:"message"`
}

// Failure is the hard failure that stopped a run.
type Failure struct {
	Kind    Kind   `json:"kind"`
	Step    string `json:"step"`
	Message string `json:"message"`
}

// Result is the record of one run. Each run owns its Result; it is not
// shared between goroutines.
type Result struct {
	RunID       string       `json:"run_id"`
	Status      Status       `json:"status"`
	StartedAt   time.Time    `json:"started_at"`
	FinishedAt  time.Time    `json:"finished_at"`
	Email       string       `json:"email,omitempty"`
	Cart        *CartSummary `json:"cart,omitempty"`
	Checkpoints []Checkpoint `json:"checkpoints"`
	Annotations []Annotation `json:"annotations"`
	Failure     *Failure     `json:"failure,omitempty"`
}

// CartSummary holds the informational reads taken on the cart page.
type CartSummary struct {
	Tier     string  `json:"tier"`
	Items    int     `json:"items"`
	Product  string  `json:"product,omitempty"`
	Subtotal float64 `json:"subtotal"`
}

// Passed reports whether the run finished without a hard failure.
func (r *Result) Passed() bool { return r.Status == StatusPassed }

// Duration is the wall time of the run.
func (r *Result) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

// Checkpoint returns the recorded checkpoint with the given name.
func (r *Result) Checkpoint(name string) (Checkpoint, bool) {
	for _, c := range r.Checkpoints {
		if c.Name == name {
			return c, true
		}
	}
	return Checkpoint{}, false
}
