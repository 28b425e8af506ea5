package constants

// Event kinds used by the Gestalt client.
// https://github.com/nostr-protocol/nips/blob/master/01.md
const (
	KindProfileMetadata   = 0
	KindTextNote          = 1
	KindRecommendRelay    = 2
	KindContactList       = 3
	KindEncryptedDM       = 4
	KindDeletionRequest   = 5
	KindRepost            = 6
	KindReaction          = 7
	KindBadgeAward        = 8
	KindChannelCreation   = 40
	KindChannelMetadata   = 41
	KindChannelMessage    = 42
	KindChannelHide       = 43
	KindChannelMute       = 44
	KindBookmarkList      = 30001
	KindMarketplaceStall  = 30017
	KindLongFormContent   = 30023
	KindCommunityPost     = 34550
)

// IsReplaceable reports whether the latest event of this kind per author
// supersedes all earlier ones.
func IsReplaceable(kind int) bool {
	return kind == KindProfileMetadata ||
		kind == KindContactList ||
		(kind >= 10000 && kind < 20000)
}

// IsParamReplaceable reports whether replacement is scoped by the "d" tag.
func IsParamReplaceable(kind int) bool {
	return kind >= 30000 && kind < 40000
}
