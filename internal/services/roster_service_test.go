package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"github.com/yukikurage/checkin-bot/internal/repository"
	"github.com/yukikurage/checkin-bot/internal/utils"
)

type RosterServiceTestSuite struct {
	storeSuite
	service *RosterService
}

func (suite *RosterServiceTestSuite) SetupTest() {
	suite.storeSuite.SetupTest()
	suite.service = NewRosterService(repository.NewUserRepository(suite.db), UserDefaults{})
}

func TestRosterServiceTestSuite(t *testing.T) {
	suite.Run(t, new(RosterServiceTestSuite))
}

func (suite *RosterServiceTestSuite) TestUpsertUser_Create() {
	user, err := suite.service.UpsertUser(suite.ctx, UpsertUserInput{
		ExternalID:  "U100",
		DisplayName: ptr("Ada"),
		Email:       ptr("ada@example.com"),
		CadenceDays: ptr(14),
	})

	suite.Require().NoError(err)
	assert.NotZero(suite.T(), user.ID)
	assert.Equal(suite.T(), "Ada", user.DisplayName)
	assert.Equal(suite.T(), "ada@example.com", *user.Email)
	assert.Equal(suite.T(), 14, user.CadenceDays)
	assert.Equal(suite.T(), "Europe/London", user.Timezone)
	assert.True(suite.T(), user.IsActive)
}

func (suite *RosterServiceTestSuite) TestUpsertUser_UpdatesOnlyProvidedFields() {
	due := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	existing := suite.createUser("U101", true, &due)

	user, err := suite.service.UpsertUser(suite.ctx, UpsertUserInput{
		ExternalID: "U101",
		Timezone:   ptr("America/New_York"),
	})

	suite.Require().NoError(err)
	assert.Equal(suite.T(), existing.ID, user.ID)
	assert.Equal(suite.T(), "America/New_York", user.Timezone)
	assert.Equal(suite.T(), "U101", user.DisplayName)
	assert.Equal(suite.T(), 7, user.CadenceDays)

	stored := suite.reloadUser(existing.ID)
	suite.Require().NotNil(stored.NextDueAt)
	assert.True(suite.T(), stored.NextDueAt.Equal(due))
}

func (suite *RosterServiceTestSuite) TestUpsertUser_CreateInactive() {
	user, err := suite.service.UpsertUser(suite.ctx, UpsertUserInput{
		ExternalID: "U102",
		IsActive:   ptr(false),
	})

	suite.Require().NoError(err)
	assert.False(suite.T(), user.IsActive)
	assert.False(suite.T(), suite.reloadUser(user.ID).IsActive)
}

func (suite *RosterServiceTestSuite) TestUpsertUser_Validation() {
	_, err := suite.service.UpsertUser(suite.ctx, UpsertUserInput{})
	assert.ErrorIs(suite.T(), err, ErrMissingExternalID)

	_, err = suite.service.UpsertUser(suite.ctx, UpsertUserInput{ExternalID: "U1", CadenceDays: ptr(0)})
	assert.ErrorIs(suite.T(), err, ErrInvalidCadence)

	_, err = suite.service.UpsertUser(suite.ctx, UpsertUserInput{ExternalID: "U1", Timezone: ptr("Mars/Olympus")})
	assert.ErrorIs(suite.T(), err, ErrInvalidTimezone)
}

func (suite *RosterServiceTestSuite) TestSetActive_PreservesHistory() {
	user := suite.createUser("U103", true, nil)
	_, err := NewUpdateService(suite.store).Record(suite.ctx, user.ID, RecordInput{Source: "free-text-dm", Summary: ptr("hi")})
	suite.Require().NoError(err)

	updated, err := suite.service.SetActive(suite.ctx, user.ID, false)

	suite.Require().NoError(err)
	assert.False(suite.T(), updated.IsActive)
	assert.Equal(suite.T(), int64(1), suite.countUpdates(user.ID, "free-text-dm"))

	_, err = suite.service.SetActive(suite.ctx, 9999, true)
	assert.ErrorIs(suite.T(), err, ErrUserNotFound)
}

func (suite *RosterServiceTestSuite) TestListUsers() {
	suite.createUser("b-user", true, nil)
	suite.createUser("a-user", true, nil)
	suite.createUser("c-user", false, nil)

	all, total, err := suite.service.ListUsers(suite.ctx, false, utils.NewPaginationParams(1, 20))
	suite.Require().NoError(err)
	assert.Equal(suite.T(), int64(3), total)
	assert.Equal(suite.T(), "a-user", all[0].ExternalID)

	active, total, err := suite.service.ListUsers(suite.ctx, true, utils.NewPaginationParams(1, 20))
	suite.Require().NoError(err)
	assert.Equal(suite.T(), int64(2), total)
	assert.Len(suite.T(), active, 2)
}
