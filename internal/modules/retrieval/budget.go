package retrieval

const (
	singleVideoK = 10
	breadthTotal = 15
	minK         = 3
	maxK         = 5

	DefaultChatTopN    = 10
	DefaultComposeTopN = 15
)

// PerVideoK is the per-collection result budget for n scoped videos:
// 10 for a single video, otherwise ceil(15/n) clamped to [3,5].
func PerVideoK(n int) int {
	if n <= 1 {
		return singleVideoK
	}
	k := (breadthTotal + n - 1) / n
	return max(minK, min(maxK, k))
}

type Mode string

const (
	ModeChat    Mode = "chat"
	ModeCompose Mode = "compose"
)

func (m Mode) Valid() bool {
	return m == ModeChat || m == ModeCompose
}
