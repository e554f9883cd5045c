package main

import (
	"os"
	"time"
)

// Controller sequences buy/check runs across accounts. Everything is strictly
// sequential: the transport and its cookie jar are shared, so each account's
// login must fully replace the previous account's session, and a pacing delay
// between accounts keeps the site's rate limiting quiet.
type Controller struct {
	auth     *AuthController
	lotto    *Lotto645
	notifier *Notifier
	logger   Logger

	buyCount      int
	mode          Lotto645Mode
	manualNumbers [][]int
	dryRun        bool
	accountDelay  time.Duration
}

func NewController(auth *AuthController, lotto *Lotto645, notifier *Notifier, logger Logger) *Controller {
	mode := ModeAuto
	manual, err := parseManualNumbers(os.Getenv("LOTTO_MANUAL_NUMBERS"))
	if err != nil {
		logger.Log("[controller] ignoring LOTTO_MANUAL_NUMBERS: %v", err)
		manual = nil
	}
	if len(manual) > 0 {
		mode = ModeManual
	}

	return &Controller{
		auth:          auth,
		lotto:         lotto,
		notifier:      notifier,
		logger:        logger,
		buyCount:      getenvInt("COUNT", 1),
		mode:          mode,
		manualNumbers: manual,
		dryRun:        getenvBool("DRY_RUN"),
		accountDelay:  getenvDuration("ACCOUNT_DELAY", 10*time.Second),
	}
}

// RunBuy logs each account in, purchases, and reports the outcome. A failure
// for one account never blocks the remaining accounts.
func (c *Controller) RunBuy(accounts []Account) {
	c.forEachAccount(accounts, func(account Account, logger Logger) {
		if c.dryRun {
			logger.Log("[controller] dry run, skipping purchase for %s", account.UserID)
			return
		}

		relogin := func() error {
			c.auth.Reset()
			return c.auth.Login(account.UserID, account.Password)
		}

		count := c.buyCount
		if c.mode == ModeManual {
			count = len(c.manualNumbers)
		}

		result, err := c.lotto.Buy(c.auth, count, c.mode, c.manualNumbers, relogin)
		if err != nil {
			logger.Log("[controller] purchase failed for %s: %v", account.UserID, err)
			c.notifier.SendPurchaseReport(account.UserID, nil, err)
			return
		}

		if balance, err := c.lotto.GetBalance(c.auth); err != nil {
			logger.Log("[controller] balance fetch failed: %v", err)
		} else {
			result.Balance = balance
		}

		c.notifier.SendPurchaseReport(account.UserID, result, nil)
	})
}

// RunCheck reports each account's recent winning record.
func (c *Controller) RunCheck(accounts []Account) {
	c.forEachAccount(accounts, func(account Account, logger Logger) {
		record, err := c.lotto.CheckWinning(c.auth)
		if err != nil {
			logger.Log("[controller] winning check failed for %s: %v", account.UserID, err)
			return
		}
		c.notifier.SendWinningReport(account.UserID, record)
	})
}

func (c *Controller) forEachAccount(accounts []Account, fn func(Account, Logger)) {
	for i, account := range accounts {
		if i > 0 && c.accountDelay > 0 {
			time.Sleep(c.accountDelay)
		}

		logger := &accountLogger{id: account.UserID, base: c.logger}
		logger.Log("[controller] processing account")

		// Fresh session per account: the shared jar must never leak
		// cookies across logins.
		c.auth.Reset()
		if err := c.auth.Login(account.UserID, account.Password); err != nil {
			logger.Log("[controller] login failed: %v", err)
			c.notifier.SendLoginFailure(account.UserID, err)
			continue
		}

		fn(account, logger)
	}
}

// accountLogger prefixes log lines with the account they belong to.
type accountLogger struct {
	id   string
	base Logger
}

func (a *accountLogger) Log(format string, args ...any) {
	a.base.Log("["+a.id+"] "+format, args...)
}
