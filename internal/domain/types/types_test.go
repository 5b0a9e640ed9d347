package types_test

import (
	"sort"
	"testing"

	types "github.com/okian/frameit/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestEntryOrdering(t *testing.T) {
	Convey("Given unsorted leaderboard entries", t, func() {
		entries := []types.Entry{
			{UserID: "carol", XP: 500, Level: 2},
			{UserID: "bob", XP: 1200, Level: 3},
			{UserID: "alice", XP: 500, Level: 2},
			{UserID: "dave", XP: 0, Level: 1},
		}

		Convey("When sorting with Less", func() {
			sort.Slice(entries, func(i, j int) bool { return types.Less(entries[i], entries[j]) })

			Convey("Then XP is descending and ties are broken by user id", func() {
				ids := make([]string, 0, len(entries))
				for _, e := range entries {
					ids = append(ids, e.UserID)
				}
				So(ids, ShouldResemble, []string{"bob", "alice", "carol", "dave"})
			})
		})

		Convey("When comparing an entry with itself", func() {
			So(types.Less(entries[0], entries[0]), ShouldBeFalse)
		})
	})
}
