package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/frameit/internal/domain/model"
	"github.com/okian/frameit/internal/domain/votes"
	. "github.com/smartystreets/goconvey/convey"
)

var errAbort = errors.New("abort")

// gatewaySuite runs the behaviour every Gateway must share. reset returns an
// empty store.
func gatewaySuite(t *testing.T, reset func() Gateway) {
	ctx := context.Background()
	jan := time.Date(2024, time.January, 10, 9, 30, 0, 0, time.UTC)

	Convey("Given an empty gateway", t, func() {
		g := reset()

		Convey("When users are stored", func() {
			So(g.PutUser(ctx, model.User{ID: "alice", DisplayName: "Alice", XP: 750, Level: 2, Achievements: []string{"first"}}), ShouldBeNil)
			So(g.PutUser(ctx, model.NewUser("bob", "Bob")), ShouldBeNil)

			Convey("Then they can be read back", func() {
				u, err := g.GetUser(ctx, "alice")
				So(err, ShouldBeNil)
				So(u.XP, ShouldEqual, 750)
				So(u.Achievements, ShouldResemble, []string{"first"})
				So(g.Count(ctx), ShouldEqual, 2)
			})

			Convey("Then unknown users are not found", func() {
				_, err := g.GetUser(ctx, "nobody")
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
				_, err = g.UpdateUser(ctx, "nobody", func(*model.User) error { return nil })
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
			})

			Convey("And updated atomically", func() {
				u, err := g.UpdateUser(ctx, "bob", func(u *model.User) error {
					u.XP = 600
					u.Level = 2
					u.AddAchievement("level_2")
					return nil
				})
				So(err, ShouldBeNil)
				So(u.XP, ShouldEqual, 600)

				stored, _ := g.GetUser(ctx, "bob")
				So(stored.Achievements, ShouldResemble, []string{"level_2"})
			})

			Convey("And a failing update writes nothing", func() {
				_, err := g.UpdateUser(ctx, "bob", func(u *model.User) error {
					u.XP = 9999
					return errAbort
				})
				So(err, ShouldEqual, errAbort)
				stored, _ := g.GetUser(ctx, "bob")
				So(stored.XP, ShouldEqual, 0)
			})

			Convey("Then the leaderboard uses competition ranking", func() {
				So(g.PutUser(ctx, model.User{ID: "carol", XP: 750, Level: 2}), ShouldBeNil)

				top, err := g.TopN(ctx, 10)
				So(err, ShouldBeNil)
				So(len(top), ShouldEqual, 3)
				So(top[0].UserID, ShouldEqual, "alice")
				So(top[0].Rank, ShouldEqual, 1)
				So(top[1].UserID, ShouldEqual, "carol")
				So(top[1].Rank, ShouldEqual, 1)
				So(top[2].UserID, ShouldEqual, "bob")
				So(top[2].Rank, ShouldEqual, 3)

				r, err := g.Rank(ctx, "bob")
				So(err, ShouldBeNil)
				So(r.Rank, ShouldEqual, 3)

				_, err = g.TopN(ctx, 0)
				So(errors.Is(err, ErrInvalidLimit), ShouldBeTrue)
				_, err = g.Rank(ctx, "nobody")
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When a user without id is stored", func() {
			err := g.PutUser(ctx, model.User{DisplayName: "ghost"})
			So(errors.Is(err, ErrInvalidRecord), ShouldBeTrue)
		})

		Convey("When teams are joined", func() {
			for _, id := range []string{"u1", "u2", "u3"} {
				So(g.PutUser(ctx, model.User{ID: id, XP: 100, Level: 1}), ShouldBeNil)
			}
			So(g.PutTeam(ctx, model.Team{ID: "t1", Name: "Shutterbugs", MaxMembers: 2}), ShouldBeNil)

			_, err := g.AddTeamMember(ctx, "t1", "u1")
			So(err, ShouldBeNil)
			team, err := g.AddTeamMember(ctx, "t1", "u2")
			So(err, ShouldBeNil)
			So(team.Members, ShouldResemble, []string{"u1", "u2"})

			Convey("Then joining again is a no-op", func() {
				team, err := g.AddTeamMember(ctx, "t1", "u1")
				So(err, ShouldBeNil)
				So(len(team.Members), ShouldEqual, 2)
			})

			Convey("Then a full team rejects new members", func() {
				_, err := g.AddTeamMember(ctx, "t1", "u3")
				So(errors.Is(err, ErrTeamFull), ShouldBeTrue)
			})

			Convey("Then unknown teams and users are not found", func() {
				_, err := g.AddTeamMember(ctx, "nope", "u1")
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
				So(g.PutTeam(ctx, model.Team{ID: "t2"}), ShouldBeNil)
				_, err = g.AddTeamMember(ctx, "t2", "ghost")
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
				_, err = g.TeamMembers(ctx, "nope")
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
			})

			Convey("Then member records come back in join order", func() {
				members, err := g.TeamMembers(ctx, "t1")
				So(err, ShouldBeNil)
				So(len(members), ShouldEqual, 2)
				So(members[0].ID, ShouldEqual, "u1")
				So(members[1].ID, ShouldEqual, "u2")
			})
		})

		Convey("When quests are completed", func() {
			So(g.PutQuest(ctx, model.Quest{ID: "q1", Title: "Bridge", Location: "Old Town", Category: "urban", XPReward: 15, MinLevel: 1, Status: model.QuestActive}), ShouldBeNil)

			created, err := g.RecordCompletion(ctx, model.Completion{UserID: "u1", QuestID: "q1", CompletedAt: jan})
			So(err, ShouldBeNil)
			So(created, ShouldBeTrue)

			Convey("Then a second completion is not new", func() {
				created, err := g.RecordCompletion(ctx, model.Completion{UserID: "u1", QuestID: "q1"})
				So(err, ShouldBeNil)
				So(created, ShouldBeFalse)
			})

			Convey("Then completions are counted per user set", func() {
				_, _ = g.RecordCompletion(ctx, model.Completion{UserID: "u2", QuestID: "q1"})
				n, err := g.CountCompletions(ctx, []string{"u1", "u2", "u9"})
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 2)
				n, _ = g.CountCompletions(ctx, nil)
				So(n, ShouldEqual, 0)
			})

			Convey("Then the quest reads back", func() {
				q, err := g.GetQuest(ctx, "q1")
				So(err, ShouldBeNil)
				So(q.Status, ShouldEqual, model.QuestActive)
				So(q.XPReward, ShouldEqual, 15)
				_, err = g.GetQuest(ctx, "q9")
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When submissions are stored", func() {
			So(g.PutQuest(ctx, model.Quest{ID: "q1", Location: "Old Town", Category: "urban", XPReward: 15, Status: model.QuestActive}), ShouldBeNil)
			So(g.PutSubmission(ctx, model.Submission{ID: "s2", UserID: "u1", QuestID: "q1", CreatedAt: jan.Add(time.Hour)}), ShouldBeNil)
			So(g.PutSubmission(ctx, model.Submission{ID: "s1", UserID: "u1", QuestID: "missing", CreatedAt: jan}), ShouldBeNil)
			So(g.PutSubmission(ctx, model.Submission{ID: "s3", UserID: "u2", QuestID: "q1", CreatedAt: jan}), ShouldBeNil)

			Convey("Then votes update atomically", func() {
				sub, err := g.UpdateSubmission(ctx, "s2", func(s *model.Submission) error {
					if s.Votes == nil {
						s.Votes = map[string]model.VoteType{}
					}
					s.Votes["v1"] = model.Upvote
					s.Upvotes, s.VoteScore = 1, 1
					return nil
				})
				So(err, ShouldBeNil)
				So(sub.VoteScore, ShouldEqual, 1)

				stored, err := g.GetSubmission(ctx, "s2")
				So(err, ShouldBeNil)
				So(stored.Votes, ShouldResemble, map[string]model.VoteType{"v1": model.Upvote})
				So(stored.Upvotes, ShouldEqual, 1)
			})

			Convey("Then ids are listed in order", func() {
				ids, err := g.ListSubmissionIDs(ctx)
				So(err, ShouldBeNil)
				So(ids, ShouldResemble, []string{"s1", "s2", "s3"})
			})

			Convey("Then discoveries join quests oldest first", func() {
				ds, err := g.Discoveries(ctx, "u1")
				So(err, ShouldBeNil)
				So(len(ds), ShouldEqual, 2)
				So(ds[0].SubmissionID, ShouldEqual, "s1")
				So(ds[0].Location, ShouldEqual, "")
				So(ds[1].Location, ShouldEqual, "Old Town")
				So(ds[1].Category, ShouldEqual, "urban")
				So(ds[1].XP, ShouldEqual, 15)
				at, ok := ds[1].Timestamp.(time.Time)
				So(ok, ShouldBeTrue)
				So(at.Equal(jan.Add(time.Hour)), ShouldBeTrue)
			})

			Convey("Then unknown submissions are not found", func() {
				_, err := g.GetSubmission(ctx, "s9")
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
				_, err = g.UpdateSubmission(ctx, "s9", func(*model.Submission) error { return nil })
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When records are created over existing ids", func() {
			So(g.CreateUser(ctx, model.NewUser("dana", "Dana")), ShouldBeNil)
			_, err := g.UpdateUser(ctx, "dana", func(u *model.User) error {
				u.XP, u.Level = 750, 2
				return nil
			})
			So(err, ShouldBeNil)

			So(g.CreateTeam(ctx, model.Team{ID: "t1", Name: "Owls", MaxMembers: 3}), ShouldBeNil)
			_, err = g.AddTeamMember(ctx, "t1", "dana")
			So(err, ShouldBeNil)

			So(g.CreateSubmission(ctx, model.Submission{ID: "s1", UserID: "dana", CreatedAt: jan}), ShouldBeNil)
			_, err = g.UpdateSubmission(ctx, "s1", func(s *model.Submission) error {
				_, err := votes.Cast(s, "v1", model.Upvote)
				return err
			})
			So(err, ShouldBeNil)

			userErr := g.CreateUser(ctx, model.NewUser("dana", "Imposter"))
			teamErr := g.CreateTeam(ctx, model.Team{ID: "t1", Name: "Larks"})
			subErr := g.CreateSubmission(ctx, model.Submission{ID: "s1", UserID: "dana"})

			Convey("Then each create is refused and the stored record survives", func() {
				So(errors.Is(userErr, ErrAlreadyExists), ShouldBeTrue)
				So(errors.Is(teamErr, ErrAlreadyExists), ShouldBeTrue)
				So(errors.Is(subErr, ErrAlreadyExists), ShouldBeTrue)

				u, err := g.GetUser(ctx, "dana")
				So(err, ShouldBeNil)
				So(u.XP, ShouldEqual, 750)
				So(u.Level, ShouldEqual, 2)
				So(u.DisplayName, ShouldEqual, "Dana")

				team, err := g.GetTeam(ctx, "t1")
				So(err, ShouldBeNil)
				So(team.Name, ShouldEqual, "Owls")
				So(team.Members, ShouldResemble, []string{"dana"})

				sub, err := g.GetSubmission(ctx, "s1")
				So(err, ShouldBeNil)
				So(sub.Votes, ShouldResemble, map[string]model.VoteType{"v1": model.Upvote})
				So(sub.Upvotes, ShouldEqual, 1)
			})

			Convey("Then creates without an id are invalid", func() {
				So(errors.Is(g.CreateUser(ctx, model.User{}), ErrInvalidRecord), ShouldBeTrue)
				So(errors.Is(g.CreateTeam(ctx, model.Team{}), ErrInvalidRecord), ShouldBeTrue)
				So(errors.Is(g.CreateSubmission(ctx, model.Submission{}), ErrInvalidRecord), ShouldBeTrue)
			})
		})

		Convey("When updates race on one record", func() {
			const writers = 32
			So(g.CreateUser(ctx, model.NewUser("racer", "")), ShouldBeNil)
			So(g.CreateSubmission(ctx, model.Submission{ID: "hot", UserID: "racer", CreatedAt: jan}), ShouldBeNil)

			errs := make(chan error, 2*writers)
			var wg sync.WaitGroup
			for i := range writers {
				wg.Add(2)
				go func() {
					defer wg.Done()
					_, err := g.UpdateUser(ctx, "racer", func(u *model.User) error {
						u.XP += 10
						return nil
					})
					errs <- err
				}()
				go func() {
					defer wg.Done()
					vt := model.Upvote
					if i%3 == 0 {
						vt = model.Downvote
					}
					_, err := g.UpdateSubmission(ctx, "hot", func(s *model.Submission) error {
						_, err := votes.Cast(s, fmt.Sprintf("voter-%02d", i), vt)
						return err
					})
					errs <- err
				}()
			}
			wg.Wait()
			close(errs)

			Convey("Then no update is lost", func() {
				for err := range errs {
					So(err, ShouldBeNil)
				}
				u, err := g.GetUser(ctx, "racer")
				So(err, ShouldBeNil)
				So(u.XP, ShouldEqual, 10*writers)

				sub, err := g.GetSubmission(ctx, "hot")
				So(err, ShouldBeNil)
				So(len(sub.Votes), ShouldEqual, writers)
				tally := votes.Recount(sub.Votes)
				So(sub.Upvotes, ShouldEqual, tally.Upvotes)
				So(sub.Downvotes, ShouldEqual, tally.Downvotes)
				So(sub.VoteScore, ShouldEqual, tally.VoteScore)
				So(tally.Downvotes, ShouldEqual, 11)
			})
		})

		Reset(func() { _ = g.Close() })
	})
}

func TestMemoryStore_Gateway(t *testing.T) {
	gatewaySuite(t, func() Gateway { return NewMemoryStore() })
}

func TestMemoryStore_DefaultTimestamps(t *testing.T) {
	Convey("Given a store with a fixed clock", t, func() {
		fixed := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
		s := NewMemoryStore(WithClock(func() time.Time { return fixed }))
		ctx := context.Background()

		Convey("When a submission has no creation time", func() {
			So(s.PutSubmission(ctx, model.Submission{ID: "s1", UserID: "u1"}), ShouldBeNil)

			Convey("Then the clock fills it in", func() {
				sub, err := s.GetSubmission(ctx, "s1")
				So(err, ShouldBeNil)
				So(sub.CreatedAt, ShouldEqual, fixed)
			})
		})
	})
}
