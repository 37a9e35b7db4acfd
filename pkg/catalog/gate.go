package catalog

// ActionKind is the outcome of selecting an item.
type ActionKind string

const (
	// ActionOpenExternal opens the item's destination link.
	ActionOpenExternal ActionKind = "open_external"

	// ActionRedirectToPaywall sends the user to the subscription screen.
	ActionRedirectToPaywall ActionKind = "redirect_paywall"
)

// DefaultPaywallURL is where unauthenticated selections are redirected.
const DefaultPaywallURL = "/subscription"

// Action is what the UI should do after an item was selected.
type Action struct {
	Kind ActionKind
	// Link is the item link for ActionOpenExternal and the paywall URL otherwise.
	Link string
}

// Gate decides between opening an item and redirecting to the paywall.
// It keeps no state: every call re-evaluates the session flag it is given.
type Gate struct {
	PaywallURL string
}

// NewGate returns a gate redirecting to paywallURL, or DefaultPaywallURL when empty.
func NewGate(paywallURL string) Gate {
	if paywallURL == "" {
		paywallURL = DefaultPaywallURL
	}
	return Gate{PaywallURL: paywallURL}
}

// Resolve maps a selection to an action.
func (g Gate) Resolve(item Item, hasSession bool) Action {
	var action Action
	if hasSession {
		action = Action{Kind: ActionOpenExternal, Link: item.Link}
	} else {
		paywall := g.PaywallURL
		if paywall == "" {
			paywall = DefaultPaywallURL
		}
		action = Action{Kind: ActionRedirectToPaywall, Link: paywall}
	}

	gateDecisionsTotal.WithLabelValues(string(action.Kind)).Inc()
	return action
}
