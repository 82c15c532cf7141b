package types

// Command is one chat command addressed to the bot, consumed synchronously
// by the dispatcher and discarded after the reply is posted
type Command struct {
	ID          string // correlation id for log and audit lines
	Intent      string // leading token, lowercased
	Scope       string // remainder after the intent token
	ChannelID   string
	ChannelName string
	UserID      string
	Username    string
}

// Raw reassembles the command line as it was received
func (c Command) Raw() string {
	if c.Scope == "" {
		return c.Intent
	}
	return c.Intent + " " + c.Scope
}
