package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/okian/frameit/internal/adapters/http/api"
	repository "github.com/okian/frameit/internal/adapters/repository"
	service "github.com/okian/frameit/internal/app"
	"github.com/okian/frameit/internal/domain/model"
	"github.com/okian/frameit/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func newService(opts ...service.Option) *service.Service {
	base := []service.Option{
		service.WithQueueSize(10),
		service.WithRepairInterval(0),
		service.WithUpvoteReward(5),
		service.WithClock(func() time.Time { return time.Date(2024, time.May, 20, 0, 0, 0, 0, time.UTC) }),
	}
	return service.New(append(base, opts...)...)
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(w *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	So(json.Unmarshal(w.Body.Bytes(), &out), ShouldBeNil)
	return out
}

// failingRank serves every route from the service except Rank.
type failingRank struct {
	*service.Service
	err error
}

func (f failingRank) Rank(context.Context, string) (types.Entry, error) {
	return types.Entry{}, f.err
}

func TestServer_Operational(t *testing.T) {
	Convey("Given a server over a fresh service", t, func() {
		h := api.NewServer(newService()).Router()

		Convey("Then /healthz serves Prometheus metrics", func() {
			w := do(h, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "frameit_progression")
		})

		Convey("Then /stats serves the service stats as JSON", func() {
			w := do(h, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode(w)["started"], ShouldEqual, false)
		})

		Convey("Then unknown routes are 404 and wrong methods 405", func() {
			So(do(h, http.MethodGet, "/nope", "").Code, ShouldEqual, http.StatusNotFound)
			So(do(h, http.MethodGet, "/xp-events", "").Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestServer_XPEvents(t *testing.T) {
	Convey("Given a server whose queue holds two events", t, func() {
		h := api.NewServer(newService(service.WithQueueSize(2))).Router()

		Convey("When posting a new event", func() {
			w := do(h, http.MethodPost, "/xp-events", `{"event_id":"e-1","user_id":"u-1","amount":50,"ts":"2024-05-01T10:00:00Z"}`)

			Convey("Then it is accepted", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				body := decode(w)
				So(body["status"], ShouldEqual, "accepted")
				So(body["duplicate"], ShouldEqual, false)
			})

			Convey("And posting it again", func() {
				again := do(h, http.MethodPost, "/xp-events", `{"event_id":"e-1","user_id":"u-1","amount":50}`)

				Convey("Then it is acknowledged as a duplicate", func() {
					So(again.Code, ShouldEqual, http.StatusOK)
					So(decode(again)["duplicate"], ShouldEqual, true)
				})
			})

			Convey("And the queue fills up", func() {
				So(do(h, http.MethodPost, "/xp-events", `{"event_id":"e-2","user_id":"u-1","amount":1}`).Code, ShouldEqual, http.StatusAccepted)
				w := do(h, http.MethodPost, "/xp-events", `{"event_id":"e-3","user_id":"u-1","amount":1}`)

				Convey("Then backpressure is reported", func() {
					So(w.Code, ShouldEqual, http.StatusTooManyRequests)
					So(decode(w)["code"], ShouldEqual, "backpressure")
				})
			})
		})

		Convey("When the event id is omitted", func() {
			w := do(h, http.MethodPost, "/xp-events", `{"user_id":"u-1","quest_id":"q-1"}`)

			Convey("Then the server assigns one", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				So(decode(w)["event_id"], ShouldHaveLength, 36)
			})
		})

		Convey("When the request is invalid", func() {
			cases := []string{
				`{"event_id":`,
				`{"event_id":"e-9","amount":5}`,
				`{"event_id":"e-9","user_id":"u-1","amount":5,"ts":"yesterday"}`,
				`{"event_id":"e-9","user_id":"u-1","amount":-5}`,
				`{"event_id":"e-9","user_id":"u-1"}`,
				`{"event_id":"vote:s-1:v1","user_id":"u-1","amount":5}`,
			}

			Convey("Then each is a bad request", func() {
				for _, body := range cases {
					w := do(h, http.MethodPost, "/xp-events", body)
					So(w.Code, ShouldEqual, http.StatusBadRequest)
					So(decode(w)["code"], ShouldEqual, "bad_request")
				}
			})
		})
	})
}

func TestServer_UsersAndQuests(t *testing.T) {
	Convey("Given a signed-up user with 750 XP", t, func() {
		svc := newService()
		h := api.NewServer(svc).Router()
		ctx := context.Background()

		w := do(h, http.MethodPost, "/users", `{"user_id":"u-1","display_name":"Ada"}`)
		So(w.Code, ShouldEqual, http.StatusCreated)
		So(decode(w)["level"], ShouldEqual, 1.0)
		_, err := svc.AwardXP(ctx, model.XPEvent{UserID: "u-1", Amount: 750})
		So(err, ShouldBeNil)

		Convey("When the same user signs up again", func() {
			w := do(h, http.MethodPost, "/users", `{"user_id":"u-1","display_name":"Imposter"}`)

			Convey("Then it conflicts and the record is untouched", func() {
				So(w.Code, ShouldEqual, http.StatusConflict)
				So(decode(w)["code"], ShouldEqual, "already_exists")
				body := decode(do(h, http.MethodGet, "/users/u-1", ""))
				So(body["xp"], ShouldEqual, 750.0)
				So(body["display_name"], ShouldEqual, "Ada")
			})
		})

		Convey("Then progress reflects the curve", func() {
			w := do(h, http.MethodGet, "/users/u-1/progress", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			progress := decode(w)["progress"].(map[string]any)
			So(progress["level"], ShouldEqual, 2.0)
			So(progress["next_level"], ShouldEqual, 3.0)
			So(progress["remaining_xp"], ShouldEqual, 400.0)
		})

		Convey("Then the user record is readable", func() {
			w := do(h, http.MethodGet, "/users/u-1", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode(w)["xp"], ShouldEqual, 750.0)
		})

		Convey("Then gallery stats are empty without submissions", func() {
			w := do(h, http.MethodGet, "/users/u-1/gallery-stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			body := decode(w)
			So(body["total_discoveries"], ShouldEqual, 0.0)
			So(body["best_month"], ShouldEqual, "No data yet")
		})

		Convey("Then a reset returns the user to level 1", func() {
			w := do(h, http.MethodPost, "/users/u-1/reset", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			body := decode(w)
			So(body["xp"], ShouldEqual, 0.0)
			So(body["level"], ShouldEqual, 1.0)
		})

		Convey("Then unknown users are not found", func() {
			w := do(h, http.MethodGet, "/users/ghost/progress", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
			So(decode(w)["code"], ShouldEqual, "not_found")
		})

		Convey("When quests are gated by level", func() {
			So(do(h, http.MethodPut, "/quests/q-2", `{"xp_reward":100,"min_level":2}`).Code, ShouldEqual, http.StatusOK)
			So(do(h, http.MethodPut, "/quests/q-9", `{"xp_reward":100,"min_level":9}`).Code, ShouldEqual, http.StatusOK)

			Convey("Then eligibility follows the user's level", func() {
				ok := decode(do(h, http.MethodGet, "/quests/q-2/eligibility/u-1", ""))
				So(ok["eligible"], ShouldEqual, true)
				no := decode(do(h, http.MethodGet, "/quests/q-9/eligibility/u-1", ""))
				So(no["eligible"], ShouldEqual, false)
			})

			Convey("Then invalid quests are rejected", func() {
				So(do(h, http.MethodPut, "/quests/q-x", `{"xp_reward":-1}`).Code, ShouldEqual, http.StatusBadRequest)
				So(do(h, http.MethodPut, "/quests/q-x", `{"status":"paused"}`).Code, ShouldEqual, http.StatusBadRequest)
			})
		})
	})
}

func TestServer_Teams(t *testing.T) {
	Convey("Given a team limited to one member", t, func() {
		svc := newService()
		h := api.NewServer(svc).Router()
		ctx := context.Background()
		So(svc.PutUser(ctx, model.User{ID: "u-1", XP: 600}), ShouldBeNil)
		So(svc.PutUser(ctx, model.NewUser("u-2", "")), ShouldBeNil)

		So(do(h, http.MethodPost, "/teams", `{"team_id":"t-1","name":"Owls","max_members":1}`).Code, ShouldEqual, http.StatusCreated)
		So(do(h, http.MethodPost, "/teams/t-1/members", `{"user_id":"u-1"}`).Code, ShouldEqual, http.StatusOK)

		Convey("Then a second member is refused", func() {
			w := do(h, http.MethodPost, "/teams/t-1/members", `{"user_id":"u-2"}`)
			So(w.Code, ShouldEqual, http.StatusConflict)
			So(decode(w)["code"], ShouldEqual, "team_full")
		})

		Convey("Then team stats fold the members", func() {
			w := do(h, http.MethodGet, "/teams/t-1/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			body := decode(w)
			So(body["total_xp"], ShouldEqual, 600.0)
			So(body["average_level"], ShouldEqual, 2.0)
			So(body["active_members"], ShouldEqual, 1.0)
			So(body["completed_quests"], ShouldEqual, 0.0)
		})

		Convey("Then unknown teams are not found", func() {
			So(do(h, http.MethodGet, "/teams/t-9/stats", "").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When the team is created again", func() {
			w := do(h, http.MethodPost, "/teams", `{"team_id":"t-1","name":"Larks"}`)

			Convey("Then it conflicts and keeps its members", func() {
				So(w.Code, ShouldEqual, http.StatusConflict)
				So(decode(w)["code"], ShouldEqual, "already_exists")
				stats := decode(do(h, http.MethodGet, "/teams/t-1/stats", ""))
				So(stats["active_members"], ShouldEqual, 1.0)
			})
		})
	})
}

func TestServer_Votes(t *testing.T) {
	Convey("Given a submission by an author", t, func() {
		svc := newService()
		h := api.NewServer(svc).Router()
		ctx := context.Background()
		So(svc.PutUser(ctx, model.NewUser("author", "")), ShouldBeNil)

		w := do(h, http.MethodPost, "/submissions", `{"submission_id":"s-1","user_id":"author","quest_id":"q-1"}`)
		So(w.Code, ShouldEqual, http.StatusCreated)
		So(decode(w)["vote_score"], ShouldEqual, 0.0)

		Convey("When the submission is created again after a vote", func() {
			So(do(h, http.MethodPost, "/submissions/s-1/votes", `{"voter_id":"v1","vote_type":"upvote"}`).Code, ShouldEqual, http.StatusOK)
			w := do(h, http.MethodPost, "/submissions", `{"submission_id":"s-1","user_id":"author"}`)

			Convey("Then it conflicts and the votes are kept", func() {
				So(w.Code, ShouldEqual, http.StatusConflict)
				So(decode(w)["code"], ShouldEqual, "already_exists")
				sub := decode(do(h, http.MethodGet, "/submissions/s-1", ""))
				So(sub["vote_score"], ShouldEqual, 1.0)
				So(sub["votes"], ShouldResemble, map[string]any{"v1": "upvote"})
			})
		})

		Convey("When a voter upvotes", func() {
			w := do(h, http.MethodPost, "/submissions/s-1/votes", `{"voter_id":"v1","vote_type":"upvote"}`)

			Convey("Then the transition and reward are reported", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				body := decode(w)
				So(body["transition"], ShouldEqual, "added")
				So(body["score_delta"], ShouldEqual, 1.0)
				So(body["reward"].(map[string]any)["gained"], ShouldEqual, 5.0)
			})

			Convey("And flips to a downvote", func() {
				w := do(h, http.MethodPost, "/submissions/s-1/votes", `{"voter_id":"v1","vote_type":"downvote"}`)

				Convey("Then the score swings by two", func() {
					So(w.Code, ShouldEqual, http.StatusOK)
					body := decode(w)
					So(body["transition"], ShouldEqual, "flipped")
					So(body["score_delta"], ShouldEqual, -2.0)
					_, hasReward := body["reward"]
					So(hasReward, ShouldBeFalse)
				})
			})
		})

		Convey("When the vote is malformed", func() {
			So(do(h, http.MethodPost, "/submissions/s-1/votes", `{"voter_id":"v1","vote_type":"meh"}`).Code, ShouldEqual, http.StatusBadRequest)
			So(do(h, http.MethodPost, "/submissions/s-1/votes", `{"vote_type":"upvote"}`).Code, ShouldEqual, http.StatusBadRequest)
			So(do(h, http.MethodPost, "/submissions/s-9/votes", `{"voter_id":"v1","vote_type":"upvote"}`).Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When the counters have drifted", func() {
			So(svc.PutSubmission(ctx, model.Submission{ID: "s-2", UserID: "author", Upvotes: 4, VoteScore: 4}), ShouldBeNil)

			Convey("Then repairing one submission reports the issues", func() {
				w := do(h, http.MethodPost, "/submissions/s-2/repair", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				body := decode(w)
				So(body["fixed"], ShouldEqual, true)
				So(body["issues"], ShouldHaveLength, 2)
			})

			Convey("Then a sweep fixes only the drifted one", func() {
				w := do(h, http.MethodPost, "/repairs", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				body := decode(w)
				So(body["checked"], ShouldEqual, 2.0)
				So(body["fixed"], ShouldEqual, 1.0)

				sub := decode(do(h, http.MethodGet, "/submissions/s-2", ""))
				So(sub["upvotes"], ShouldEqual, 0.0)
				So(sub["vote_score"], ShouldEqual, 0.0)
			})
		})
	})
}

func TestServer_Leaderboard(t *testing.T) {
	Convey("Given three ranked users", t, func() {
		svc := newService()
		h := api.NewServer(svc, api.WithMaxLimit(2)).Router()
		ctx := context.Background()
		So(svc.PutUser(ctx, model.User{ID: "b", XP: 900}), ShouldBeNil)
		So(svc.PutUser(ctx, model.User{ID: "a", XP: 900}), ShouldBeNil)
		So(svc.PutUser(ctx, model.User{ID: "c", XP: 10}), ShouldBeNil)

		Convey("Then the top entries are ranked with ties", func() {
			w := do(h, http.MethodGet, "/leaderboard?limit=2", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var entries []types.Entry
			So(json.Unmarshal(w.Body.Bytes(), &entries), ShouldBeNil)
			So(entries, ShouldHaveLength, 2)
			So(entries[0].UserID, ShouldEqual, "a")
			So(entries[0].Rank, ShouldEqual, 1)
			So(entries[1].Rank, ShouldEqual, 1)
		})

		Convey("Then bad limits are rejected", func() {
			So(do(h, http.MethodGet, "/leaderboard", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(h, http.MethodGet, "/leaderboard?limit=0", "").Code, ShouldEqual, http.StatusBadRequest)
			w := do(h, http.MethodGet, "/leaderboard?limit=3", "")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(decode(w)["code"], ShouldEqual, "limit_exceeded")
		})

		Convey("Then a rank can be looked up", func() {
			w := do(h, http.MethodGet, "/rank/c", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			body := decode(w)
			So(body["rank"], ShouldEqual, 3.0)
			So(body["user_id"], ShouldEqual, "c")
			So(do(h, http.MethodGet, "/rank/ghost", "").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When the store fails", func() {
			broken := api.NewServer(failingRank{Service: svc, err: errors.New("connection reset")}).Router()
			w := do(broken, http.MethodGet, "/rank/a", "")

			Convey("Then the failure is an internal error", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				body := decode(w)
				So(body["code"], ShouldEqual, "internal_error")
				So(body["message"], ShouldEqual, "api.get_rank: connection reset")
			})
		})
	})
}

func TestErrors(t *testing.T) {
	Convey("Given op-tagged errors", t, func() {
		cause := errors.New("boom")

		Convey("Then kinds and causes are both matchable", func() {
			err := api.WrapKind("api.op", api.ErrBadRequest, cause)
			So(errors.Is(err, api.ErrBadRequest), ShouldBeTrue)
			So(errors.Is(err, cause), ShouldBeTrue)
			So(err.Error(), ShouldEqual, "api.op: bad request: boom")
		})

		Convey("Then NewKind and Wrap format their parts", func() {
			So(api.NewKind("api.op", api.ErrBackpressure).Error(), ShouldEqual, "api.op: backpressure")
			So(api.Wrap("api.op", cause).Error(), ShouldEqual, "api.op: boom")
			So(api.Wrap("api.op", nil), ShouldBeNil)
		})

		Convey("Then repository errors keep their identity through Wrap", func() {
			err := api.Wrap("api.op", repository.ErrNotFound)
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})
	})
}
