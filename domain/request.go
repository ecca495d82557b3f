package domain

// PostMessageRequest is the body for posting a user message to a conversation.
type PostMessageRequest struct {
	Content string `json:"content"`
	UserID  string `json:"user_id,omitempty"`
}

// ApproveBatchRequest is the body for a sequential multi-approval batch.
// Proposal ids are processed strictly in the given order.
type ApproveBatchRequest struct {
	ProposalIDs []string `json:"proposal_ids"`
}

// ApproveBatchResponse reports the proposals a batch actually touched. When
// Halted is set, processing stopped at the last returned proposal and every
// later id was left untouched.
type ApproveBatchResponse struct {
	Proposals []ActionProposal `json:"proposals"`
	Halted    bool             `json:"halted,omitempty"`
	Error     string           `json:"error,omitempty"`
}
