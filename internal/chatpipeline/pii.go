package chatpipeline

import (
	"context"
	"fmt"
)

// runPIIGate implements its PII gate. It returns the detection payload
// (nil if the probe was skipped or found nothing) and the conversation's
// resulting globalSharingBlocked state.
func (p *Pipeline) runPIIGate(ctx context.Context, conversationID, userQuery, response string, isTrivial bool, consent *bool) (*PIIDetection, bool, error) {
	alreadyBlocked, err := p.store.IsConversationGlobalSharingBlocked(ctx, conversationID)
	if err != nil {
		return nil, false, fmt.Errorf("check global sharing blocked: %w", err)
	}
	if alreadyBlocked || isTrivial {
		return nil, alreadyBlocked, nil
	}

	result, err := p.llm.DetectPII(ctx, userQuery, response)
	if err != nil {
		return nil, alreadyBlocked, fmt.Errorf("detect pii: %w", err)
	}
	if !result.ContainsPII {
		return nil, alreadyBlocked, nil
	}

	detection := &PIIDetection{ContainsPII: true, PIITypes: result.PIITypes, Explanation: result.Explanation}

	if consent != nil && !*consent {
		if err := p.store.SetConversationGlobalSharingBlocked(ctx, conversationID, true); err != nil {
			return detection, alreadyBlocked, fmt.Errorf("set global sharing blocked: %w", err)
		}
		return detection, true, nil
	}

	// consent omitted: return the detection for the UI to call pii-consent
	// next; consent == true is a no-op on the flag.
	return detection, alreadyBlocked, nil
}

// ApplyPIIConsent backs POST /api/chat/pii-consent: a declined consent
// sets globalSharingBlocked; an accepted consent is a no-op on the flag.
func (p *Pipeline) ApplyPIIConsent(ctx context.Context, conversationID string, consent bool) (bool, error) {
	if !consent {
		if err := p.store.SetConversationGlobalSharingBlocked(ctx, conversationID, true); err != nil {
			return false, fmt.Errorf("set global sharing blocked: %w", err)
		}
		return true, nil
	}
	return p.store.IsConversationGlobalSharingBlocked(ctx, conversationID)
}
