package database

type ChatRepository interface {
	Ping() error
	CreateAccount(params CreateAccountParams) (User, error)
	UpdateAccount(params UpdateAccountParams) (User, error)
	GetAccountById(accountId int) (User, error)
	GetAccountByEmail(email string) (User, error)
	GetPublicProfile(accountId int) (User, error)
	CreateMessage(params CreateMessageParams) (Message, error)
	GetMessageByExternalId(externalId string) (Message, error)
	UpdateMessage(msg Message) (Message, error)
	GetConversation(accountId, peerId int) ([]Message, error)
	GetContacts(accountId int) ([]Contact, error)
}
