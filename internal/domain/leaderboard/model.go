package leaderboard

// Entry is one ranked coach. Best/Avg are nil until the coach records a
// completion; nulls rank last.
type Entry struct {
	Rank              int
	UserID            string
	DisplayName       string
	CompletionsCount  int
	BestDaysToPremier *int
	AvgDaysToPremier  *int
}

// Board is the global view: top slice plus the caller's own row, which
// is always present even when the caller is outside the window.
type Board struct {
	Entries      []Entry
	MyEntry      Entry
	TotalCoaches int
}
