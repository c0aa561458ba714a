package main

import (
	"fmt"

	"merchantpay/internal/infrastructure/database"
	"merchantpay/internal/repository"

	"github.com/spf13/cobra"
)

func outboxRequeueCmd() *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "outbox-requeue [id...]",
		Short: "把发送失败的 outbox 消息放回待发送队列",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := database.Open(&cfg.Database)
			if err != nil {
				return err
			}
			repo := repository.NewOutboxRepository(db)
			out := cmd.OutOrStdout()

			if list || len(args) == 0 {
				failed, err := repo.GetFailedMessages(cmd.Context(), 100)
				if err != nil {
					return err
				}
				for _, m := range failed {
					fmt.Fprintf(out, "%d\t%s\t%s\t%s\tretry=%d\n", m.ID, m.EventType, m.Topic, m.EventID, m.RetryCount)
				}
				return nil
			}

			for _, arg := range args {
				var id int64
				if _, err := fmt.Sscan(arg, &id); err != nil {
					return fmt.Errorf("无效的 id: %s", arg)
				}
				if err := repo.Requeue(cmd.Context(), id); err != nil {
					return fmt.Errorf("重新入队失败: id=%d, err=%w", id, err)
				}
				fmt.Fprintf(out, "已重新入队: %d\n", id)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&list, "list", "l", false, "只列出失败的消息")
	return cmd
}
