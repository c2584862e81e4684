// SPDX-License-Identifier: GPL-3.0-or-later
package main

import (
	"github.com/CrawX/go-imap-harvest/classifier/rspamd"
	"github.com/CrawX/go-imap-harvest/classifier/spamassassin"
	"github.com/CrawX/go-imap-harvest/config"
	"github.com/CrawX/go-imap-harvest/decomposer"
	"github.com/CrawX/go-imap-harvest/filter"
	"github.com/CrawX/go-imap-harvest/harvester"
	"github.com/CrawX/go-imap-harvest/imapconnection"
	"github.com/CrawX/go-imap-harvest/log"
	"github.com/CrawX/go-imap-harvest/persistence"

	"github.com/sirupsen/logrus"
)

func main() {
	log.InitLogging("debug")
	logger := log.Logger(log.LOG_MAIN)

	conf, err := config.ReadConfig("config.toml")
	if err != nil {
		logger.WithField("error", err).Fatal("Could not load config")
	}

	if conf.Loglevel != nil {
		log.SetLogLevel(*conf.Loglevel)
	}

	expression := filter.BuildSearchExpression(conf.Filter)
	logger.WithField("criteria", expression).Debug("Built search expression")

	p, err := persistence.NewPersistence(conf.Database)
	if err != nil {
		logger.WithField("error", err).Fatal("Could not connect to database")
	}
	defer p.Close()

	decomposerConfigs := conf.Extract.DecomposerOptions()
	if len(conf.SpamassassinHost) > 0 {
		sa, err := spamassassin.NewSpamAssassin(conf.SpamassassinHost)
		if err != nil {
			logger.WithField("error", err).Fatal("Could not start spamassassin connector")
		}
		decomposerConfigs = append(decomposerConfigs, decomposer.Classifier(sa))
	} else if len(conf.RspamdController) > 0 {
		rs, err := rspamd.NewRspamd(conf.RspamdController, conf.RspamdPassword)
		if err != nil {
			logger.WithField("error", err).Fatal("Could not start rspamd connector")
		}
		decomposerConfigs = append(decomposerConfigs, decomposer.Classifier(rs))
	}

	imapConn, err := imapconnection.NewImapConnection(conf.ImapHost, conf.User, conf.Password)
	if err != nil {
		logger.WithField("error", err).Fatal("Could not start imap connector")
	}
	defer imapConn.Close()

	d, err := decomposer.NewDecomposer(imapConn, decomposerConfigs...)
	if err != nil {
		logger.WithField("error", err).Fatal("Could not start decomposer")
	}

	configs := []harvester.ConfigFunc{}
	if conf.DryRun {
		configs = append(configs, harvester.DryRun())
	}
	if conf.DeleteProcessed {
		configs = append(configs, harvester.DeleteProcessed())
	}
	if conf.MoveProcessed {
		configs = append(configs, harvester.MoveProcessed(conf.ProcessedFolder))
	}

	h, err := harvester.NewHarvester(p, imapConn, d, configs...)
	if err != nil {
		logger.WithField("error", err).Fatal("Could not start harvester")
	}

	logger.WithFields(logrus.Fields{"mailboxes": conf.Mailboxes, "dryrun": conf.DryRun, "criteria": expression}).Info("Harvesting mails")
	if conf.DryRun {
		logger.Warn("Skipping moving & deletion of processed mails due to dry-run")
	}
	err = h.Harvest(conf.Mailboxes, expression)
	if err != nil {
		logger.WithField("error", err).Fatal("Harvesting failed")
	}
}
