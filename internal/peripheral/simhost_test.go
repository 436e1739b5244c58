package peripheral_test

import (
	"context"
	"errors"
	"testing"

	"github.com/srg/edad/internal/eda"
	"github.com/srg/edad/internal/gatt"
	"github.com/srg/edad/internal/peripheral"
	"github.com/srg/edad/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// SimHostSuite runs an EDA service on a SimHost behind a live dispatcher.
type SimHostSuite struct {
	suite.Suite

	ctx    context.Context
	cancel context.CancelFunc
	disp   *peripheral.Dispatcher
	host   *peripheral.SimHost
	svc    *eda.Service
	events []eda.Event
}

func (s *SimHostSuite) SetupTest() {
	helper := testutils.NewTestHelper(s.T())
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.disp = peripheral.NewDispatcher(helper.Logger, 0)
	s.host = peripheral.NewSimHost(s.disp, helper.Logger)
	s.events = nil

	svc, err := eda.New(&eda.Config{
		SupportNotification: true,
		CCCDWriteAccess:     gatt.SecOpen,
		EventHandler:        func(_ *eda.Service, ev eda.Event) { s.events = append(s.events, ev) },
	}, eda.Stack{
		Registry:  s.host,
		Conns:     s.host.Conns(),
		Transport: s.host,
		Logger:    helper.Logger,
	})
	s.Require().NoError(err)
	s.svc = svc

	s.disp.Observe(svc)
	s.disp.Start(s.ctx)
}

func (s *SimHostSuite) TearDownTest() {
	s.cancel()
	<-s.disp.Done()
}

func (s *SimHostSuite) update(level eda.Level) error {
	return s.disp.Do(s.ctx, func() error { return s.svc.UpdateLevel(level, gatt.ConnHandleAll) })
}

func (s *SimHostSuite) TestSubscribeProducesEvents() {
	conn, err := s.host.Connect(s.ctx, "aa:aa")
	s.Require().NoError(err)

	value := s.svc.LevelHandles().Value
	s.Require().NoError(s.host.Subscribe(s.ctx, conn, value, true))
	s.Require().NoError(s.host.Subscribe(s.ctx, conn, value, false))

	s.Equal([]eda.Event{
		{Type: eda.NotificationEnabled, Conn: conn},
		{Type: eda.NotificationDisabled, Conn: conn},
	}, s.events)
}

func (s *SimHostSuite) TestUpdateReachesSubscribedPeers() {
	a, _ := s.host.Connect(s.ctx, "aa:aa")
	b, _ := s.host.Connect(s.ctx, "bb:bb")
	s.Require().NoError(s.host.Subscribe(s.ctx, a, s.svc.LevelHandles().Value, true))

	err := s.update(77)

	s.ErrorIs(err, gatt.ErrTransportFailed, "b is connected but not subscribed")
	s.ErrorIs(err, peripheral.ErrNotSubscribed)
	deliveries := s.host.Deliveries()
	s.Require().Len(deliveries, 1)
	s.Equal(a, deliveries[0].Conn)
	s.Equal("aa:aa", deliveries[0].Peer)
	s.Equal([]byte{0x00, 77}, deliveries[0].Data)
	s.NotEqual(b, deliveries[0].Conn)
}

func (s *SimHostSuite) TestFailNextFailsOnce() {
	conn, _ := s.host.Connect(s.ctx, "aa:aa")
	s.Require().NoError(s.host.Subscribe(s.ctx, conn, s.svc.LevelHandles().Value, true))

	boom := errors.New("radio busy")
	s.host.FailNext(conn, boom)

	s.ErrorIs(s.update(1), boom)
	s.NoError(s.update(2))
	s.Len(s.host.Deliveries(), 1)
}

func (s *SimHostSuite) TestDisconnectClearsSubscription() {
	conn, _ := s.host.Connect(s.ctx, "aa:aa")
	cccd := s.svc.LevelHandles().CCCD
	s.Require().NoError(s.host.WriteCCCD(s.ctx, conn, cccd, true))
	s.True(s.host.Subscribed(conn, cccd))

	s.Require().NoError(s.host.Disconnect(s.ctx, conn))
	s.False(s.host.Subscribed(conn, cccd))
	s.Equal(gatt.ConnStatusDisconnected, s.host.Conns().Status(conn))

	s.NoError(s.update(9), "no connected peers left")
	s.Empty(s.host.Deliveries())

	s.ErrorIs(s.host.Disconnect(s.ctx, 99), peripheral.ErrNotConnected)
	s.ErrorIs(s.host.WriteCCCD(s.ctx, conn, cccd, true), peripheral.ErrNotConnected)
}

func (s *SimHostSuite) TestOnDeliveryCallback() {
	var got []peripheral.Delivery
	s.host.OnDelivery = func(d peripheral.Delivery) { got = append(got, d) }

	conn, _ := s.host.Connect(s.ctx, "aa:aa")
	s.Require().NoError(s.host.Subscribe(s.ctx, conn, s.svc.LevelHandles().Value, true))
	s.Require().NoError(s.update(3))

	s.Require().Len(got, 1)
	s.Equal(conn, got[0].Conn)
}

func TestSimHostSuite(t *testing.T) {
	suite.Run(t, new(SimHostSuite))
}

func TestSimHost_CCCDWriteAccess(t *testing.T) {
	helper := testutils.NewTestHelper(t)
	ctx, cancel := context.WithCancel(context.Background())
	disp := peripheral.NewDispatcher(helper.Logger, 0)
	host := peripheral.NewSimHost(disp, helper.Logger)

	var events []eda.Event
	svc, err := eda.New(&eda.Config{
		SupportNotification: true,
		CCCDWriteAccess:     gatt.SecNoAccess,
		EventHandler:        func(_ *eda.Service, ev eda.Event) { events = append(events, ev) },
	}, eda.Stack{Registry: host, Conns: host.Conns(), Transport: host, Logger: helper.Logger})
	require.NoError(t, err)
	disp.Observe(svc)
	disp.Start(ctx)
	t.Cleanup(func() {
		cancel()
		<-disp.Done()
	})

	conn, err := host.Connect(ctx, "aa:aa")
	require.NoError(t, err)

	err = host.Subscribe(ctx, conn, svc.LevelHandles().Value, true)
	assert.ErrorIs(t, err, peripheral.ErrWriteNotPerm)
	assert.False(t, host.Subscribed(conn, svc.LevelHandles().CCCD))
	assert.Empty(t, events, "a refused write is not reported")

	err = disp.Do(ctx, func() error { return svc.UpdateLevel(99, gatt.ConnHandleAll) })
	assert.ErrorIs(t, err, peripheral.ErrNotSubscribed)
	assert.Empty(t, host.Deliveries())
}

func (s *SimHostSuite) TestCCCDStatePerConnection() {
	a, _ := s.host.Connect(s.ctx, "aa:aa")
	b, _ := s.host.Connect(s.ctx, "bb:bb")
	cccd := s.svc.LevelHandles().CCCD
	s.Require().NoError(s.host.WriteCCCD(s.ctx, a, cccd, true))
	s.Require().NoError(s.host.WriteCCCD(s.ctx, b, cccd, false))

	va, _ := s.host.CCCDValue(a, cccd)
	vb, _ := s.host.CCCDValue(b, cccd)
	s.Equal([]byte{0x01, 0x00}, va)
	s.Equal([]byte{0x00, 0x00}, vb)

	s.Require().NoError(s.host.Disconnect(s.ctx, a))
	va, _ = s.host.CCCDValue(a, cccd)
	s.Equal([]byte{0x00, 0x00}, va)
}

func TestSimHost_NotifyValidation(t *testing.T) {
	helper := testutils.NewTestHelper(t)
	host := peripheral.NewSimHost(peripheral.NewDispatcher(helper.Logger, 0), helper.Logger)

	err := host.Notify(1, gatt.HVXParams{Handle: 3, Data: []byte{0, 1}})
	assert.ErrorIs(t, err, peripheral.ErrNotConnected)

	// Subscribe needs a characteristic with a CCCD.
	err = host.Subscribe(context.Background(), 0, 3, true)
	require.Error(t, err)
}
