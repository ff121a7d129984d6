package subscription

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/lintasdata/enforcer/internal/models"
	"github.com/lintasdata/enforcer/pkg/config"
	"github.com/lintasdata/enforcer/pkg/types"
)

type fakeEnforcer struct {
	calls   []types.SubscriptionStatus
	succeed bool
}

func (f *fakeEnforcer) Enforce(ctx context.Context, customer *models.Customer, sub *models.Subscription, pkg *models.PrepaidPackage) types.EnforceResult {
	f.calls = append(f.calls, sub.Status)
	if f.succeed {
		return types.Ok("applied")
	}
	return types.Failed("router down")
}

type fakeNotifier struct {
	activated, expiring, expired []uint
}

func (f *fakeNotifier) Activated(ctx context.Context, id uint) { f.activated = append(f.activated, id) }
func (f *fakeNotifier) ExpiringSoon(ctx context.Context, id uint, days int) {
	f.expiring = append(f.expiring, id)
}
func (f *fakeNotifier) Expired(ctx context.Context, id uint) { f.expired = append(f.expired, id) }

func newTestService(t *testing.T, succeed bool) (*Service, *gorm.DB, *fakeEnforcer, *fakeNotifier) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Customer{}, &models.PrepaidPackage{}, &models.Subscription{},
		&models.SubscriptionLog{}, &models.SpeedHistory{},
	))
	enf := &fakeEnforcer{succeed: succeed}
	ntf := &fakeNotifier{}
	svc := NewService(&config.Config{}, db, zap.NewNop().Sugar(), enf, ntf)
	return svc, db, enf, ntf
}

func seedCustomerAndPackage(t *testing.T, db *gorm.DB) (*models.Customer, *models.PrepaidPackage) {
	t.Helper()
	customer := &models.Customer{Name: "Budi", ConnectionType: types.ConnectionTypePPPoE, PPPoEUsername: "budi@isp", BillingMode: types.BillingModePostpaid}
	require.NoError(t, db.Create(customer).Error)
	pkg := &models.PrepaidPackage{
		Name: "Home 20", ConnectionType: types.ConnectionTypePPPoE,
		MikrotikProfileName: "prepaid-20mbps", DownloadMbps: 20, UploadMbps: 10,
		DurationDays: 30, IsActive: true,
	}
	require.NoError(t, db.Create(pkg).Error)
	return customer, pkg
}

func TestActivate(t *testing.T) {
	svc, db, enf, ntf := newTestService(t, true)
	customer, pkg := seedCustomerAndPackage(t, db)

	res, err := svc.Activate(context.Background(), &ActivateRequest{CustomerID: customer.ID, PackageID: pkg.ID})
	require.NoError(t, err)
	require.True(t, res.Network.Success)

	sub := res.Subscription
	assert.Equal(t, types.SubscriptionStatusActive, sub.Status)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, 30), sub.ExpiryDate, time.Minute)
	assert.True(t, sub.MikrotikSynced)
	assert.Len(t, enf.calls, 1)
	assert.Equal(t, []uint{sub.ID}, ntf.activated)

	var reloaded models.Customer
	require.NoError(t, db.First(&reloaded, customer.ID).Error)
	assert.Equal(t, types.BillingModePrepaid, reloaded.BillingMode)
	assert.False(t, reloaded.IsIsolated)

	var speed []models.SpeedHistory
	require.NoError(t, db.Where("customer_id = ?", customer.ID).Find(&speed).Error)
	require.Len(t, speed, 1)
	assert.Equal(t, 20, speed[0].DownloadMbps)

	var logs []models.SubscriptionLog
	require.NoError(t, db.Where("subscription_id = ?", sub.ID).Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, types.ChangeReasonActivated, logs[0].Reason)
	assert.Nil(t, logs[0].Before.Data())
	require.NotNil(t, logs[0].After.Data())
	assert.Equal(t, types.SubscriptionStatusActive, logs[0].After.Data().Status)
}

func TestActivateSupersedesPriorActive(t *testing.T) {
	svc, db, _, _ := newTestService(t, true)
	customer, pkg := seedCustomerAndPackage(t, db)

	first, err := svc.Activate(context.Background(), &ActivateRequest{CustomerID: customer.ID, PackageID: pkg.ID})
	require.NoError(t, err)
	second, err := svc.Activate(context.Background(), &ActivateRequest{CustomerID: customer.ID, PackageID: pkg.ID})
	require.NoError(t, err)

	var active []models.Subscription
	require.NoError(t, db.Where("customer_id = ? AND status = ?", customer.ID, types.SubscriptionStatusActive).Find(&active).Error)
	require.Len(t, active, 1, "exactly one active row after re-activation")
	assert.Equal(t, second.Subscription.ID, active[0].ID)

	var old models.Subscription
	require.NoError(t, db.First(&old, first.Subscription.ID).Error)
	assert.Equal(t, types.SubscriptionStatusReplaced, old.Status)
}

func TestActivateBillingCommitSurvivesNetworkFailure(t *testing.T) {
	svc, db, _, _ := newTestService(t, false)
	customer, pkg := seedCustomerAndPackage(t, db)

	res, err := svc.Activate(context.Background(), &ActivateRequest{CustomerID: customer.ID, PackageID: pkg.ID})
	require.NoError(t, err, "billing succeeded even though the network apply failed")
	assert.False(t, res.Network.Success)

	var sub models.Subscription
	require.NoError(t, db.First(&sub, res.Subscription.ID).Error)
	assert.Equal(t, types.SubscriptionStatusActive, sub.Status)
	assert.False(t, sub.MikrotikSynced)
}

func TestActivateValidation(t *testing.T) {
	svc, db, _, _ := newTestService(t, true)
	customer, pkg := seedCustomerAndPackage(t, db)

	_, err := svc.Activate(context.Background(), &ActivateRequest{CustomerID: 999, PackageID: pkg.ID})
	assert.ErrorIs(t, err, ErrCustomerNotFound)

	_, err = svc.Activate(context.Background(), &ActivateRequest{CustomerID: customer.ID, PackageID: 999})
	assert.ErrorIs(t, err, ErrPackageNotFound)

	disabled := &models.PrepaidPackage{Name: "old", ConnectionType: types.ConnectionTypePPPoE, DurationDays: 30, IsActive: false}
	require.NoError(t, db.Create(disabled).Error)
	_, err = svc.Activate(context.Background(), &ActivateRequest{CustomerID: customer.ID, PackageID: disabled.ID})
	assert.ErrorIs(t, err, ErrPackageNotFound)

	staticPkg := &models.PrepaidPackage{Name: "static", ConnectionType: types.ConnectionTypeStaticIP, DurationDays: 30, IsActive: true}
	require.NoError(t, db.Create(staticPkg).Error)
	_, err = svc.Activate(context.Background(), &ActivateRequest{CustomerID: customer.ID, PackageID: staticPkg.ID})
	assert.Error(t, err, "connection type mismatch must be rejected")
}

func TestDeactivateIsSafeToCallTwice(t *testing.T) {
	svc, db, enf, ntf := newTestService(t, true)
	customer, pkg := seedCustomerAndPackage(t, db)
	res, err := svc.Activate(context.Background(), &ActivateRequest{CustomerID: customer.ID, PackageID: pkg.ID})
	require.NoError(t, err)
	subID := res.Subscription.ID

	first, err := svc.Deactivate(context.Background(), subID, types.DeactivationReasonExpired)
	require.NoError(t, err)
	assert.Equal(t, types.SubscriptionStatusExpired, first.Subscription.Status)

	callsAfterFirst := len(enf.calls)
	second, err := svc.Deactivate(context.Background(), subID, types.DeactivationReasonExpired)
	require.NoError(t, err)
	assert.True(t, second.Network.Success)
	assert.Len(t, enf.calls, callsAfterFirst, "second deactivation must not touch the router")

	var reloaded models.Customer
	require.NoError(t, db.First(&reloaded, customer.ID).Error)
	assert.True(t, reloaded.IsIsolated)
	assert.Equal(t, []uint{subID}, ntf.expired)
}

func TestPauseAndResumeExtendExpiry(t *testing.T) {
	svc, db, _, _ := newTestService(t, true)
	customer, pkg := seedCustomerAndPackage(t, db)
	res, err := svc.Activate(context.Background(), &ActivateRequest{CustomerID: customer.ID, PackageID: pkg.ID})
	require.NoError(t, err)
	subID := res.Subscription.ID
	originalExpiry := res.Subscription.ExpiryDate

	paused, err := svc.Pause(context.Background(), subID)
	require.NoError(t, err)
	assert.Equal(t, types.SubscriptionStatusPaused, paused.Subscription.Status)

	// Backdate the pause so the extension is measurable.
	pausedAt := time.Now().Add(-48 * time.Hour)
	require.NoError(t, db.Model(&models.Subscription{}).Where("id = ?", subID).Update("paused_at", pausedAt).Error)

	resumed, err := svc.Resume(context.Background(), subID)
	require.NoError(t, err)
	assert.Equal(t, types.SubscriptionStatusActive, resumed.Subscription.Status)
	assert.WithinDuration(t, originalExpiry.Add(48*time.Hour), resumed.Subscription.ExpiryDate, time.Minute)
	assert.Nil(t, resumed.Subscription.PausedAt)

	_, err = svc.Resume(context.Background(), subID)
	assert.ErrorIs(t, err, ErrInvalidTransition, "resuming an active subscription is invalid")
}

func TestPauseRequiresActive(t *testing.T) {
	svc, db, _, _ := newTestService(t, true)
	customer, pkg := seedCustomerAndPackage(t, db)
	res, err := svc.Activate(context.Background(), &ActivateRequest{CustomerID: customer.ID, PackageID: pkg.ID})
	require.NoError(t, err)
	_, err = svc.Deactivate(context.Background(), res.Subscription.ID, types.DeactivationReasonCancelled)
	require.NoError(t, err)

	_, err = svc.Pause(context.Background(), res.Subscription.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestDeplete(t *testing.T) {
	svc, db, _, _ := newTestService(t, true)
	customer, pkg := seedCustomerAndPackage(t, db)
	res, err := svc.Activate(context.Background(), &ActivateRequest{CustomerID: customer.ID, PackageID: pkg.ID})
	require.NoError(t, err)

	out, err := svc.Deplete(context.Background(), res.Subscription.ID)
	require.NoError(t, err)
	assert.Equal(t, types.SubscriptionStatusDepleted, out.Subscription.Status)
}

func TestActiveSubscriptionAndHistory(t *testing.T) {
	svc, db, _, _ := newTestService(t, true)
	customer, pkg := seedCustomerAndPackage(t, db)

	active, err := svc.ActiveSubscription(context.Background(), customer.ID)
	require.NoError(t, err)
	assert.Nil(t, active)

	for i := 0; i < 3; i++ {
		_, err := svc.Activate(context.Background(), &ActivateRequest{CustomerID: customer.ID, PackageID: pkg.ID})
		require.NoError(t, err)
	}

	active, err = svc.ActiveSubscription(context.Background(), customer.ID)
	require.NoError(t, err)
	require.NotNil(t, active)
	require.NotNil(t, active.Package)
	assert.Equal(t, pkg.ID, active.Package.ID)

	history, err := svc.History(context.Background(), customer.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, active.ID, history[0].ID, "newest first")
}
