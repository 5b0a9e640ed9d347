package progression_test

import (
	"math"
	"testing"

	"github.com/okian/frameit/internal/domain/model"
	progression "github.com/okian/frameit/internal/domain/progression"
	. "github.com/smartystreets/goconvey/convey"
)

func TestCalculateLevel(t *testing.T) {
	Convey("Given the default curve", t, func() {
		Convey("When XP is below the first threshold", func() {
			So(progression.CalculateLevel(0), ShouldEqual, 1)
			So(progression.CalculateLevel(499), ShouldEqual, 1)
		})

		Convey("When XP is exactly the base threshold", func() {
			So(progression.CalculateLevel(500), ShouldEqual, 2)
		})

		Convey("When XP crosses the compounding thresholds", func() {
			// 500, 500+650=1150, 1150+845=1995, 1995+1098.5=3093.5
			So(progression.CalculateLevel(750), ShouldEqual, 2)
			So(progression.CalculateLevel(1149), ShouldEqual, 2)
			So(progression.CalculateLevel(1150), ShouldEqual, 3)
			So(progression.CalculateLevel(1994), ShouldEqual, 3)
			So(progression.CalculateLevel(1996), ShouldEqual, 4)
			So(progression.CalculateLevel(3093), ShouldEqual, 4)
			So(progression.CalculateLevel(3094), ShouldEqual, 5)
		})

		Convey("When XP is negative", func() {
			Convey("Then it should be clamped to zero", func() {
				So(progression.CalculateLevel(-100), ShouldEqual, 1)
				So(progression.ClampXP(-1), ShouldEqual, 0)
			})
		})

		Convey("Then the level should never decrease as XP grows", func() {
			prev := progression.CalculateLevel(0)
			for xp := int64(0); xp <= 50_000; xp += 13 {
				lvl := progression.CalculateLevel(xp)
				So(lvl, ShouldBeGreaterThanOrEqualTo, prev)
				prev = lvl
			}
		})
	})
}

func TestGetLevelProgress(t *testing.T) {
	Convey("Given the default curve", t, func() {
		Convey("When XP is zero", func() {
			p := progression.GetLevelProgress(0)

			Convey("Then the user is at the start of level 1", func() {
				So(p.Level, ShouldEqual, 1)
				So(p.NextLevel, ShouldEqual, 2)
				So(p.ProgressPercentage, ShouldEqual, 0)
				So(p.RemainingXP, ShouldEqual, 500)
			})
		})

		Convey("When XP is 750", func() {
			p := progression.GetLevelProgress(750)

			Convey("Then it should match the exact loop", func() {
				So(p.Level, ShouldEqual, 2)
				So(p.NextLevel, ShouldEqual, 3)
				So(p.RemainingXP, ShouldEqual, 400)
				So(p.ProgressPercentage, ShouldAlmostEqual, 250.0/650.0*100, 1e-9)
				So(p.LevelStartXP, ShouldEqual, 500)
				So(p.NextLevelXP, ShouldEqual, 1150)
			})
		})

		Convey("When XP is exactly on a threshold", func() {
			p := progression.GetLevelProgress(500)

			Convey("Then progress restarts at zero for the new level", func() {
				So(p.Level, ShouldEqual, 2)
				So(p.ProgressPercentage, ShouldEqual, 0)
				So(p.RemainingXP, ShouldEqual, 650)
			})
		})

		Convey("Then progress should stay within bounds for any XP", func() {
			for xp := int64(-50); xp <= 60_000; xp += 37 {
				p := progression.GetLevelProgress(xp)
				So(p.ProgressPercentage, ShouldBeBetweenOrEqual, 0, 100)
				So(p.RemainingXP, ShouldBeGreaterThanOrEqualTo, 0)
				So(p.NextLevel, ShouldEqual, p.Level+1)
			}
		})
	})
}

func TestCurveOptions(t *testing.T) {
	Convey("Given curve options", t, func() {
		Convey("When a custom base is set", func() {
			c := progression.NewCurve(progression.WithBaseXP(100))

			So(c.Level(99), ShouldEqual, 1)
			So(c.Level(100), ShouldEqual, 2)
		})

		Convey("When a converging growth factor is given", func() {
			c := progression.NewCurve(progression.WithGrowth(0.5))

			Convey("Then it should keep the default growth", func() {
				So(c.Level(1150), ShouldEqual, 3)
			})
		})

		Convey("When a flat growth factor is given", func() {
			c := progression.NewCurve(progression.WithGrowth(1))

			Convey("Then it should keep the default growth", func() {
				So(c.Level(1150), ShouldEqual, 3)
				So(c.Level(1<<62), ShouldBeLessThan, progression.MaxLevel)
			})
		})

		Convey("When growth barely exceeds 1", func() {
			c := progression.NewCurve(progression.WithGrowth(1.000_000_1))

			Convey("Then huge totals stop at the level cap", func() {
				So(c.Level(math.MaxInt64), ShouldEqual, progression.MaxLevel)
				p := c.Progress(math.MaxInt64)
				So(p.Level, ShouldEqual, progression.MaxLevel)
				So(p.ProgressPercentage, ShouldEqual, 100.0)
				So(p.RemainingXP, ShouldEqual, 0)
			})
		})

		Convey("When a non-positive base is given", func() {
			c := progression.NewCurve(progression.WithBaseXP(0))

			So(c.Level(499), ShouldEqual, 1)
			So(c.Level(500), ShouldEqual, 2)
		})
	})
}

func TestAward(t *testing.T) {
	Convey("Given a new user", t, func() {
		c := progression.NewCurve(progression.WithMilestones(3, 5))
		u := model.NewUser("u-1", "")

		Convey("When awarding XP below the first threshold", func() {
			res := c.Award(&u, 100)

			Convey("Then XP grows and the level stays", func() {
				So(res.Gained, ShouldEqual, 100)
				So(u.XP, ShouldEqual, 100)
				So(u.Level, ShouldEqual, 1)
				So(res.LevelChanged, ShouldBeFalse)
				So(res.NewAchievements, ShouldBeEmpty)
			})
		})

		Convey("When awarding enough XP to pass several levels", func() {
			res := c.Award(&u, 3094)

			Convey("Then the cached level and milestones are updated", func() {
				So(u.Level, ShouldEqual, 5)
				So(res.PreviousLevel, ShouldEqual, 1)
				So(res.LevelChanged, ShouldBeTrue)
				So(res.NewAchievements, ShouldResemble, []string{"level_3", "level_5"})
				So(u.HasAchievement("level_5"), ShouldBeTrue)
			})

			Convey("And milestones are not granted twice", func() {
				again := c.Award(&u, 10)
				So(again.NewAchievements, ShouldBeEmpty)
			})
		})

		Convey("When awarding a negative amount", func() {
			u.XP = 200
			res := c.Award(&u, -500)

			Convey("Then XP should not decrease", func() {
				So(res.Gained, ShouldEqual, 0)
				So(u.XP, ShouldEqual, 200)
			})
		})
	})
}

func TestRecomputeAndReset(t *testing.T) {
	Convey("Given a user with a stale cached level", t, func() {
		c := progression.Default()
		u := model.User{ID: "u-1", XP: 1200, Level: 1}

		Convey("When recomputing", func() {
			changed := c.Recompute(&u)

			Convey("Then the level is refreshed once", func() {
				So(changed, ShouldBeTrue)
				So(u.Level, ShouldEqual, 3)
				So(c.Recompute(&u), ShouldBeFalse)
			})
		})

		Convey("When resetting", func() {
			u.Achievements = []string{"level_5"}
			c.Reset(&u)

			Convey("Then XP and level go back to the start", func() {
				So(u.XP, ShouldEqual, 0)
				So(u.Level, ShouldEqual, 1)
				So(u.Achievements, ShouldResemble, []string{"level_5"})
			})
		})
	})
}

func TestCanAttempt(t *testing.T) {
	Convey("Given a level-gated quest", t, func() {
		q := model.Quest{ID: "q-1", MinLevel: 3, Status: model.QuestActive}

		So(progression.CanAttempt(2, q), ShouldBeFalse)
		So(progression.CanAttempt(3, q), ShouldBeTrue)

		q.Status = model.QuestExpired
		So(progression.CanAttempt(10, q), ShouldBeFalse)

		q.Status = model.QuestDraft
		So(progression.CanAttempt(10, q), ShouldBeFalse)
	})
}
