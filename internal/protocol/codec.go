package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"lanchat/internal/model"
)

// ErrMalformedRequest 未知命令、字段数错误或数值字段无法解析
var ErrMalformedRequest = errors.New("malformed request")

// Separator 字段分隔符
const Separator = "|"

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedRequest, fmt.Sprintf(format, args...))
}

var lineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// Escape 竖线写成 \|，紧贴竖线或字段末尾的反斜杠加倍，其余反斜杠原样保留。
// 一行无法携带换行，换行符替换为空格
func Escape(s string) string {
	s = lineBreaks.Replace(s)
	if !strings.ContainsAny(s, `\|`) {
		return s
	}
	var b strings.Builder
	run := 0
	flush := func(double bool) {
		if double {
			run *= 2
		}
		b.WriteString(strings.Repeat(`\`, run))
		run = 0
	}
	for _, r := range s {
		switch r {
		case '\\':
			run++
		case '|':
			flush(true)
			b.WriteString(`\|`)
		default:
			flush(false)
			b.WriteRune(r)
		}
	}
	flush(true)
	return b.String()
}

// splitFields 按未转义的分隔符切分。只有紧贴竖线或行尾的连续反斜杠才参与转义：
// 竖线前奇数个反斜杠表示字面竖线，偶数个表示分隔符，两种情况都折半还原；
// 行尾偶数个折半，奇数个原样保留。其他位置的反斜杠一律是字面值
func splitFields(line string) []string {
	var (
		parts   []string
		current strings.Builder
		run     int
	)
	for _, r := range line {
		switch r {
		case '\\':
			run++
		case '|':
			current.WriteString(strings.Repeat(`\`, run/2))
			if run%2 == 1 {
				current.WriteRune('|')
			} else {
				parts = append(parts, current.String())
				current.Reset()
			}
			run = 0
		default:
			current.WriteString(strings.Repeat(`\`, run))
			current.WriteRune(r)
			run = 0
		}
	}
	if run%2 == 0 {
		run /= 2
	}
	current.WriteString(strings.Repeat(`\`, run))
	return append(parts, current.String())
}

func join(cmd string, fields ...string) string {
	var b strings.Builder
	b.WriteString(cmd)
	for _, f := range fields {
		b.WriteString(Separator)
		b.WriteString(Escape(f))
	}
	return b.String()
}

func parseID(field, name string) (uint, error) {
	id, err := strconv.ParseUint(field, 10, 0)
	if err != nil {
		return 0, malformed("%s %q is not an id", name, field)
	}
	return uint(id), nil
}

func formatID(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

func expectFields(cmd string, args []string, counts ...int) error {
	for _, n := range counts {
		if len(args) == n {
			return nil
		}
	}
	return malformed("%s expects %v fields, got %d", cmd, counts, len(args))
}

// ParseRequest 把一行（不含换行符）解码为请求
func ParseRequest(line string) (Request, error) {
	line = strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
	if line == "" {
		return nil, malformed("empty line")
	}

	fields := splitFields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case CmdLogin:
		if err := expectFields(cmd, args, 2); err != nil {
			return nil, err
		}
		return &LoginRequest{Username: args[0], Password: args[1]}, nil

	case CmdRegister:
		if err := expectFields(cmd, args, 3, 4); err != nil {
			return nil, err
		}
		req := &RegisterRequest{Username: args[0], Password: args[1], Nickname: args[2]}
		if len(args) == 4 {
			req.AvatarPath = args[3]
		}
		return req, nil

	case CmdGetFriends, CmdLogout, CmdGetToken:
		if err := expectFields(cmd, args, 1); err != nil {
			return nil, err
		}
		id, err := parseID(args[0], "userId")
		if err != nil {
			return nil, err
		}
		switch cmd {
		case CmdGetFriends:
			return &GetFriendsRequest{UserID: id}, nil
		case CmdLogout:
			return &LogoutRequest{UserID: id}, nil
		default:
			return &GetTokenRequest{UserID: id}, nil
		}

	case CmdGetMessages:
		if err := expectFields(cmd, args, 2, 3); err != nil {
			return nil, err
		}
		user, peer, err := parsePair(args)
		if err != nil {
			return nil, err
		}
		req := &GetMessagesRequest{UserID: user, PeerID: peer}
		if len(args) == 3 {
			limit, err := strconv.Atoi(args[2])
			if err != nil || limit < 0 {
				return nil, malformed("limit %q", args[2])
			}
			req.Limit = limit
		}
		return req, nil

	case CmdSaveMessage:
		return parseSaveMessage(args)

	case CmdSearchUsers:
		if err := expectFields(cmd, args, 2, 3); err != nil {
			return nil, err
		}
		id, err := parseID(args[0], "userId")
		if err != nil {
			return nil, err
		}
		req := &SearchUsersRequest{UserID: id, Keyword: args[1], ExcludeFriends: true}
		if len(args) == 3 {
			exclude, err := strconv.ParseBool(args[2])
			if err != nil {
				return nil, malformed("excludeFriends %q", args[2])
			}
			req.ExcludeFriends = exclude
		}
		return req, nil

	case CmdAddFriend:
		if err := expectFields(cmd, args, 2, 3); err != nil {
			return nil, err
		}
		user, friend, err := parsePair(args)
		if err != nil {
			return nil, err
		}
		req := &AddFriendRequest{UserID: user, FriendID: friend}
		if len(args) == 3 {
			req.RemarkName = args[2]
		}
		return req, nil

	case CmdRemoveFriend, CmdMarkRead, CmdGetUnread:
		if err := expectFields(cmd, args, 2); err != nil {
			return nil, err
		}
		user, peer, err := parsePair(args)
		if err != nil {
			return nil, err
		}
		switch cmd {
		case CmdRemoveFriend:
			return &RemoveFriendRequest{UserID: user, FriendID: peer}, nil
		case CmdMarkRead:
			return &MarkReadRequest{UserID: user, PeerID: peer}, nil
		default:
			return &GetUnreadRequest{UserID: user, PeerID: peer}, nil
		}

	case CmdPing:
		if err := expectFields(cmd, args, 0); err != nil {
			return nil, err
		}
		return &PingRequest{}, nil
	}

	return nil, malformed("unknown command %q", cmd)
}

func parsePair(args []string) (uint, uint, error) {
	a, err := parseID(args[0], "userId")
	if err != nil {
		return 0, 0, err
	}
	b, err := parseID(args[1], "peerId")
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

// 文件消息必须带 fileName、fileSize，文本消息不能带
func parseSaveMessage(args []string) (Request, error) {
	if err := expectFields(CmdSaveMessage, args, 4, 6); err != nil {
		return nil, err
	}
	sender, receiver, err := parsePair(args)
	if err != nil {
		return nil, err
	}
	contentType, err := strconv.Atoi(args[2])
	if err != nil {
		return nil, malformed("contentType %q", args[2])
	}
	isFile := contentType == model.ContentFile
	if isFile != (len(args) == 6) {
		return nil, malformed("contentType %d with %d fields", contentType, len(args))
	}

	req := &SaveMessageRequest{
		SenderID:    sender,
		ReceiverID:  receiver,
		ContentType: contentType,
		Content:     args[3],
	}
	if isFile {
		size, err := strconv.ParseInt(args[5], 10, 64)
		if err != nil {
			return nil, malformed("fileSize %q", args[5])
		}
		req.FileName = args[4]
		req.FileSize = size
	}
	return req, nil
}

// EncodeRequest 把请求编码为一行（不含换行符）
func EncodeRequest(req Request) string {
	switch r := req.(type) {
	case *LoginRequest:
		return join(CmdLogin, r.Username, r.Password)
	case *RegisterRequest:
		if r.AvatarPath == "" {
			return join(CmdRegister, r.Username, r.Password, r.Nickname)
		}
		return join(CmdRegister, r.Username, r.Password, r.Nickname, r.AvatarPath)
	case *GetFriendsRequest:
		return join(CmdGetFriends, formatID(r.UserID))
	case *LogoutRequest:
		return join(CmdLogout, formatID(r.UserID))
	case *GetMessagesRequest:
		if r.Limit > 0 {
			return join(CmdGetMessages, formatID(r.UserID), formatID(r.PeerID), strconv.Itoa(r.Limit))
		}
		return join(CmdGetMessages, formatID(r.UserID), formatID(r.PeerID))
	case *SaveMessageRequest:
		fields := []string{formatID(r.SenderID), formatID(r.ReceiverID), strconv.Itoa(r.ContentType), r.Content}
		if r.ContentType == model.ContentFile {
			fields = append(fields, r.FileName, strconv.FormatInt(r.FileSize, 10))
		}
		return join(CmdSaveMessage, fields...)
	case *SearchUsersRequest:
		if !r.ExcludeFriends {
			return join(CmdSearchUsers, formatID(r.UserID), r.Keyword, "0")
		}
		return join(CmdSearchUsers, formatID(r.UserID), r.Keyword)
	case *AddFriendRequest:
		if r.RemarkName != "" {
			return join(CmdAddFriend, formatID(r.UserID), formatID(r.FriendID), r.RemarkName)
		}
		return join(CmdAddFriend, formatID(r.UserID), formatID(r.FriendID))
	case *RemoveFriendRequest:
		return join(CmdRemoveFriend, formatID(r.UserID), formatID(r.FriendID))
	case *MarkReadRequest:
		return join(CmdMarkRead, formatID(r.UserID), formatID(r.PeerID))
	case *GetUnreadRequest:
		return join(CmdGetUnread, formatID(r.UserID), formatID(r.PeerID))
	case *GetTokenRequest:
		return join(CmdGetToken, formatID(r.UserID))
	case *PingRequest:
		return CmdPing
	}
	return req.Command()
}

// EncodeResponse 把响应编码为一行（不含换行符）
func EncodeResponse(resp Response) string {
	switch r := resp.(type) {
	case *LoginSuccess:
		return join(RespLoginSuccess, r.User.Record()...)
	case *Failure:
		return join(r.Cmd, r.Reason)
	case *Ack:
		return r.Cmd
	case *Result:
		if !r.OK {
			return join(r.Cmd, resultFail, r.Reason)
		}
		return join(r.Cmd, append([]string{resultSuccess}, r.Extra...)...)
	case *UserList:
		fields := make([]string, 0, 1+len(r.Users)*5)
		fields = append(fields, strconv.Itoa(len(r.Users)))
		for i := range r.Users {
			fields = append(fields, r.Users[i].Record()...)
		}
		return join(r.Cmd, fields...)
	case *MessageList:
		fields := make([]string, 0, 1+len(r.Messages)*8)
		fields = append(fields, strconv.Itoa(len(r.Messages)))
		for i := range r.Messages {
			fields = append(fields, r.Messages[i].Record()...)
		}
		return join(RespMessageList, fields...)
	case *UnreadCount:
		return join(RespUnreadCount, formatID(r.PeerID), strconv.FormatInt(r.Count, 10))
	case *ProtocolError:
		return join(RespError, badRequest)
	}
	return resp.Command()
}

// ParseResponse 把响应行切分为命令和还原后的字段
func ParseResponse(line string) (string, []string) {
	line = strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
	fields := splitFields(line)
	return fields[0], fields[1:]
}
